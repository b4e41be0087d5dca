package payroll

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Transactor runs fn inside one unit of work against the primary store.
// Repository calls made with the ctx passed to fn join that unit of work.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(txCtx context.Context) error) error
}

// CycleStatusUpdate carries the fields written on a cycle transition.
type CycleStatusUpdate struct {
	Status      CycleStatus
	DueDate     *time.Time
	TotalPayout *decimal.Decimal
	PaidAt      *time.Time
	FinalizedBy *string
}

type CycleRepository interface {
	// Create returns ErrDuplicatePeriod when the period key is taken.
	Create(ctx context.Context, cycle Cycle) (Cycle, error)
	GetByID(ctx context.Context, id string) (Cycle, error)
	// GetByIDForUpdate locks the cycle row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (Cycle, error)
	GetByPeriodKey(ctx context.Context, periodKey string) (Cycle, error)
	List(ctx context.Context, filter CycleFilter) ([]Cycle, int64, error)
	UpdateStatus(ctx context.Context, id string, update CycleStatusUpdate) error
	Delete(ctx context.Context, id string) error
}

type SlipRepository interface {
	// CreateMany inserts every slip or none; a repeated (cycle, user) pair fails the batch with ErrDuplicateSlip.
	CreateMany(ctx context.Context, cycleID string, slips []Slip) ([]Slip, error)
	GetByID(ctx context.Context, id string) (Slip, error)
	ListByCycle(ctx context.Context, cycleID string) ([]Slip, error)
	// Update writes every mutable column when the stored version equals slip.Version,
	// and returns the slip with its version incremented. A stale version yields ErrConcurrentModification.
	Update(ctx context.Context, slip Slip) (Slip, error)
	MarkAllPaid(ctx context.Context, cycleID string, paidAt time.Time) (int64, error)
	Delete(ctx context.Context, id string) error
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, events []OutboxEvent) ([]OutboxEvent, error)
	// ListPending returns undelivered events with fewer than maxAttempts attempts, oldest first.
	ListPending(ctx context.Context, maxAttempts, limit int) ([]OutboxEvent, error)
	MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error
	MarkFailed(ctx context.Context, id string, lastErr string) error
}

type DeductionRateRepository interface {
	// GetCurrent returns ErrDeductionRatesNotFound when no rates were ever saved.
	GetCurrent(ctx context.Context) (DeductionRates, error)
	// Save stores rates as a new version and returns it.
	Save(ctx context.Context, rates DeductionRates) (DeductionRates, error)
}
