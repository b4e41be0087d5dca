package cron

import (
	"context"
	"time"
)

// OutboxRetrier redelivers payroll side effects that failed after commit.
type OutboxRetrier interface {
	RetryPending(ctx context.Context) error
}

// PayrollJobs contains payroll-related cron jobs
type PayrollJobs struct {
	outbox   OutboxRetrier
	interval time.Duration
}

// NewPayrollJobs creates payroll cron jobs
func NewPayrollJobs(outbox OutboxRetrier, interval time.Duration) *PayrollJobs {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PayrollJobs{
		outbox:   outbox,
		interval: interval,
	}
}

// RegisterJobs registers all payroll-related cron jobs
func (j *PayrollJobs) RegisterJobs(scheduler *Scheduler) {
	// Redeliver notifications and ledger postings still pending
	// Each run is bounded by the retry interval
	scheduler.AddJob(
		"retry_payroll_outbox",
		j.interval,
		j.RetryPayrollOutbox,
		WithTimeout(j.interval),
	)
}

// RetryPayrollOutbox redelivers pending notification and ledger events
func (j *PayrollJobs) RetryPayrollOutbox(ctx context.Context) error {
	return j.outbox.RetryPending(ctx)
}
