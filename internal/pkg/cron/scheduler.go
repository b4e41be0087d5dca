package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// failureWarnThreshold is the number of consecutive failures after which a job logs at Error
const failureWarnThreshold = 3

type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration // zero means the run is bounded only by Stop
	Fn       func(ctx context.Context) error
}

// JobOption customizes a job at registration
type JobOption func(*Job)

// WithTimeout bounds every run of the job
func WithTimeout(d time.Duration) JobOption {
	return func(j *Job) { j.Timeout = d }
}

// Scheduler runs each registered job on its own ticker until Stop
type Scheduler struct {
	jobs     []Job
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	logger   *slog.Logger
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With("component", "cron"),
	}
}

func (s *Scheduler) AddJob(name string, interval time.Duration, fn func(ctx context.Context) error, opts ...JobOption) {
	job := Job{Name: name, Interval: interval, Fn: fn}
	for _, opt := range opts {
		opt(&job)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	s.logger.Info("cron job registered", "name", name, "interval", interval, "timeout", job.Timeout)
}

// Start launches every registered job; later calls are no-ops.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runJob(job)
	}
	s.logger.Info("cron scheduler started", "job_count", len(s.jobs))
}

// Stop cancels in-flight runs and waits for every job goroutine to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.logger.Info("cron scheduler stopped")
	})
}

func (s *Scheduler) runJob(job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	failures := 0
	run := func() {
		if err := s.executeJob(s.ctx, job); err != nil {
			failures++
			level := slog.LevelWarn
			if failures >= failureWarnThreshold {
				level = slog.LevelError
			}
			s.logger.Log(s.ctx, level, "cron job failed", "name", job.Name, "consecutive_failures", failures, "error", err)
			return
		}
		if failures > 0 {
			s.logger.Info("cron job recovered", "name", job.Name, "after_failures", failures)
		}
		failures = 0
	}

	run()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func (s *Scheduler) executeJob(ctx context.Context, job Job) error {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Fn(ctx)
	s.logger.Debug("cron job finished", "name", job.Name, "duration", time.Since(start), "ok", err == nil)
	return err
}

// RunOnce runs every job a single time, synchronously, and returns how many failed
func (s *Scheduler) RunOnce(ctx context.Context) int {
	s.mu.Lock()
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	failed := 0
	for _, job := range jobs {
		if err := s.executeJob(ctx, job); err != nil {
			failed++
			s.logger.Error("cron job failed", "name", job.Name, "error", err)
		}
	}
	return failed
}
