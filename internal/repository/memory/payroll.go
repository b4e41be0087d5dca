package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/google/uuid"
)

// ========== CYCLES ==========

type cycleRepository struct{ *Store }

func NewCycleRepository(store *Store) payroll.CycleRepository {
	return &cycleRepository{store}
}

func (r *cycleRepository) Create(ctx context.Context, cycle payroll.Cycle) (payroll.Cycle, error) {
	err := r.write(ctx, func() error {
		for _, existing := range r.cycles {
			if existing.PeriodKey == cycle.PeriodKey {
				return fmt.Errorf("%w: %s", payroll.ErrDuplicatePeriod, cycle.PeriodKey)
			}
		}
		now := r.now()
		cycle.ID = uuid.New().String()
		cycle.CreatedAt = now
		cycle.UpdatedAt = now
		r.cycles[cycle.ID] = cycle
		return nil
	})
	if err != nil {
		return payroll.Cycle{}, err
	}
	return cycle, nil
}

func (r *cycleRepository) GetByID(ctx context.Context, id string) (payroll.Cycle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cycle, ok := r.cycles[id]
	if !ok {
		return payroll.Cycle{}, payroll.ErrCycleNotFound
	}
	return r.withSlipCount(cycle), nil
}

// GetByIDForUpdate relies on the store-wide transaction lock for exclusivity.
func (r *cycleRepository) GetByIDForUpdate(ctx context.Context, id string) (payroll.Cycle, error) {
	return r.GetByID(ctx, id)
}

func (r *cycleRepository) GetByPeriodKey(ctx context.Context, periodKey string) (payroll.Cycle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cycle := range r.cycles {
		if cycle.PeriodKey == periodKey {
			return r.withSlipCount(cycle), nil
		}
	}
	return payroll.Cycle{}, payroll.ErrCycleNotFound
}

func (r *cycleRepository) List(ctx context.Context, filter payroll.CycleFilter) ([]payroll.Cycle, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []payroll.Cycle
	for _, cycle := range r.cycles {
		if filter.ExcludeDraft && cycle.Status == payroll.CycleStatusDraft {
			continue
		}
		if filter.Status != nil && string(cycle.Status) != *filter.Status {
			continue
		}
		if filter.PeriodKey != nil && cycle.PeriodKey != *filter.PeriodKey {
			continue
		}
		matched = append(matched, r.withSlipCount(cycle))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].PeriodKey > matched[j].PeriodKey
	})

	total := int64(len(matched))
	if filter.Limit > 0 {
		start := (filter.Page - 1) * filter.Limit
		if start < 0 {
			start = 0
		}
		if start >= len(matched) {
			return []payroll.Cycle{}, total, nil
		}
		end := min(start+filter.Limit, len(matched))
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (r *cycleRepository) UpdateStatus(ctx context.Context, id string, update payroll.CycleStatusUpdate) error {
	return r.write(ctx, func() error {
		cycle, ok := r.cycles[id]
		if !ok {
			return payroll.ErrCycleNotFound
		}
		cycle.Status = update.Status
		if update.DueDate != nil {
			cycle.DueDate = update.DueDate
		}
		if update.TotalPayout != nil {
			cycle.TotalPayout = update.TotalPayout
		}
		if update.PaidAt != nil {
			cycle.PaidAt = update.PaidAt
		}
		if update.FinalizedBy != nil {
			cycle.FinalizedBy = update.FinalizedBy
		}
		cycle.UpdatedAt = r.now()
		r.cycles[id] = cycle
		return nil
	})
}

func (r *cycleRepository) Delete(ctx context.Context, id string) error {
	return r.write(ctx, func() error {
		if _, ok := r.cycles[id]; !ok {
			return payroll.ErrCycleNotFound
		}
		delete(r.cycles, id)
		for slipID, row := range r.slips {
			if row.slip.CycleID == id {
				delete(r.slips, slipID)
			}
		}
		return nil
	})
}

// withSlipCount must be called with mu held.
func (r *cycleRepository) withSlipCount(cycle payroll.Cycle) payroll.Cycle {
	cycle.SlipCount = 0
	for _, row := range r.slips {
		if row.slip.CycleID == cycle.ID {
			cycle.SlipCount++
		}
	}
	return cycle
}

// ========== SLIPS ==========

type slipRepository struct{ *Store }

func NewSlipRepository(store *Store) payroll.SlipRepository {
	return &slipRepository{store}
}

func (r *slipRepository) CreateMany(ctx context.Context, cycleID string, slips []payroll.Slip) ([]payroll.Slip, error) {
	created := make([]payroll.Slip, 0, len(slips))
	err := r.write(ctx, func() error {
		if _, ok := r.cycles[cycleID]; !ok {
			return payroll.ErrCycleNotFound
		}

		seen := make(map[string]bool)
		for _, row := range r.slips {
			if row.slip.CycleID == cycleID {
				seen[row.slip.UserID] = true
			}
		}
		for _, slip := range slips {
			if seen[slip.UserID] {
				return fmt.Errorf("%w: user %s", payroll.ErrDuplicateSlip, slip.UserID)
			}
			seen[slip.UserID] = true
		}

		now := r.now()
		for _, slip := range slips {
			slip.ID = uuid.New().String()
			slip.CycleID = cycleID
			if slip.Status == "" {
				slip.Status = payroll.SlipStatusPending
			}
			slip.Version = 1
			slip.CreatedAt = now
			slip.UpdatedAt = now
			r.slips[slip.ID] = slipRow{slip: slip, seq: r.nextSeq()}
			created = append(created, slip)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *slipRepository) GetByID(ctx context.Context, id string) (payroll.Slip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.slips[id]
	if !ok {
		return payroll.Slip{}, payroll.ErrSlipNotFound
	}
	return row.slip, nil
}

func (r *slipRepository) ListByCycle(ctx context.Context, cycleID string) ([]payroll.Slip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rows []slipRow
	for _, row := range r.slips {
		if row.slip.CycleID == cycleID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	slips := make([]payroll.Slip, 0, len(rows))
	for _, row := range rows {
		slips = append(slips, row.slip)
	}
	return slips, nil
}

func (r *slipRepository) Update(ctx context.Context, slip payroll.Slip) (payroll.Slip, error) {
	err := r.write(ctx, func() error {
		row, ok := r.slips[slip.ID]
		if !ok {
			return payroll.ErrSlipNotFound
		}
		if row.slip.Version != slip.Version {
			return fmt.Errorf("%w: slip %s is at version %d, update was based on %d",
				payroll.ErrConcurrentModification, slip.ID, row.slip.Version, slip.Version)
		}
		// Identity and creation columns are not updatable
		slip.CycleID = row.slip.CycleID
		slip.UserID = row.slip.UserID
		slip.CreatedAt = row.slip.CreatedAt
		slip.Version++
		slip.UpdatedAt = r.now()
		row.slip = slip
		r.slips[slip.ID] = row
		return nil
	})
	if err != nil {
		return payroll.Slip{}, err
	}
	return slip, nil
}

func (r *slipRepository) MarkAllPaid(ctx context.Context, cycleID string, paidAt time.Time) (int64, error) {
	var count int64
	err := r.write(ctx, func() error {
		for id, row := range r.slips {
			if row.slip.CycleID != cycleID {
				continue
			}
			row.slip.Status = payroll.SlipStatusPaid
			row.slip.PaidAt = &paidAt
			row.slip.Version++
			row.slip.UpdatedAt = paidAt
			r.slips[id] = row
			count++
		}
		return nil
	})
	return count, err
}

func (r *slipRepository) Delete(ctx context.Context, id string) error {
	return r.write(ctx, func() error {
		if _, ok := r.slips[id]; !ok {
			return payroll.ErrSlipNotFound
		}
		delete(r.slips, id)
		return nil
	})
}

// ========== OUTBOX ==========

type outboxRepository struct{ *Store }

func NewOutboxRepository(store *Store) payroll.OutboxRepository {
	return &outboxRepository{store}
}

func (r *outboxRepository) Enqueue(ctx context.Context, events []payroll.OutboxEvent) ([]payroll.OutboxEvent, error) {
	stored := make([]payroll.OutboxEvent, 0, len(events))
	err := r.write(ctx, func() error {
		now := r.now()
		for _, event := range events {
			event.ID = uuid.New().String()
			event.CreatedAt = now
			r.outbox[event.ID] = outboxRow{event: event, seq: r.nextSeq()}
			stored = append(stored, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *outboxRepository) ListPending(ctx context.Context, maxAttempts, limit int) ([]payroll.OutboxEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rows []outboxRow
	for _, row := range r.outbox {
		if row.event.DeliveredAt == nil && row.event.Attempts < maxAttempts {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	events := make([]payroll.OutboxEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.event)
	}
	return events, nil
}

func (r *outboxRepository) MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	return r.write(ctx, func() error {
		row, ok := r.outbox[id]
		if !ok {
			return fmt.Errorf("outbox event %s not found", id)
		}
		row.event.Attempts++
		row.event.DeliveredAt = &deliveredAt
		row.event.LastError = nil
		r.outbox[id] = row
		return nil
	})
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, lastErr string) error {
	return r.write(ctx, func() error {
		row, ok := r.outbox[id]
		if !ok {
			return fmt.Errorf("outbox event %s not found", id)
		}
		row.event.Attempts++
		row.event.LastError = &lastErr
		r.outbox[id] = row
		return nil
	})
}

// ========== DEDUCTION RATES ==========

type deductionRateRepository struct{ *Store }

func NewDeductionRateRepository(store *Store) payroll.DeductionRateRepository {
	return &deductionRateRepository{store}
}

func (r *deductionRateRepository) GetCurrent(ctx context.Context) (payroll.DeductionRates, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.rates) == 0 {
		return payroll.DeductionRates{}, payroll.ErrDeductionRatesNotFound
	}
	return r.rates[len(r.rates)-1], nil
}

func (r *deductionRateRepository) Save(ctx context.Context, rates payroll.DeductionRates) (payroll.DeductionRates, error) {
	err := r.write(ctx, func() error {
		rates.Version = 1
		if n := len(r.rates); n > 0 {
			rates.Version = r.rates[n-1].Version + 1
		}
		now := r.now()
		rates.UpdatedAt = &now
		r.rates = append(r.rates, rates)
		return nil
	})
	if err != nil {
		return payroll.DeductionRates{}, err
	}
	return rates, nil
}
