package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type retrierStub struct {
	calls atomic.Int32
	err   error
}

func (r *retrierStub) RetryPending(ctx context.Context) error {
	r.calls.Add(1)
	return r.err
}

func TestScheduler_RunOnce_RunsEveryJob(t *testing.T) {
	s := NewScheduler(nil)
	retrier := &retrierStub{err: errors.New("ledger down")}
	NewPayrollJobs(retrier, time.Hour).RegisterJobs(s)

	var other atomic.Int32
	s.AddJob("other", time.Hour, func(ctx context.Context) error {
		other.Add(1)
		return nil
	})

	// Act
	failed := s.RunOnce(context.Background())

	// Assert
	assert.Equal(t, 1, failed)
	assert.Equal(t, int32(1), retrier.calls.Load())
	assert.Equal(t, int32(1), other.Load())
}

func TestScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	s := NewScheduler(nil)
	retrier := &retrierStub{}
	NewPayrollJobs(retrier, time.Hour).RegisterJobs(s)

	s.Start()
	require.Eventually(t, func() bool { return retrier.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(1), retrier.calls.Load())
}

func TestNewPayrollJobs_DefaultsInterval(t *testing.T) {
	jobs := NewPayrollJobs(&retrierStub{}, 0)
	assert.Equal(t, time.Minute, jobs.interval)
}

func TestScheduler_WithTimeoutBoundsEachRun(t *testing.T) {
	s := NewScheduler(nil)
	s.AddJob("slow", time.Hour, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithTimeout(20*time.Millisecond))

	// Act
	start := time.Now()
	failed := s.RunOnce(context.Background())

	// Assert
	assert.Equal(t, 1, failed)
	assert.Less(t, time.Since(start), time.Second)
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := NewScheduler(nil)
	s.Start()
	s.Start()

	s.Stop()
	s.Stop()
}
