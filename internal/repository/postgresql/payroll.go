package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// ========== CYCLES ==========

type cycleRepository struct {
	db *database.DB
}

func NewCycleRepository(db *database.DB) payroll.CycleRepository {
	return &cycleRepository{db: db}
}

const cycleColumns = `
	c.id, c.period_key, c.period_start, c.period_end, c.status, c.due_date, c.total_payout,
	c.rate_snapshot, c.created_by, c.finalized_by, c.paid_at, c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM payroll_slips s WHERE s.cycle_id = c.id) AS slip_count`

func scanCycle(row rowScanner) (payroll.Cycle, error) {
	var (
		c        payroll.Cycle
		status   string
		snapshot []byte
	)
	err := row.Scan(
		&c.ID, &c.PeriodKey, &c.PeriodStart, &c.PeriodEnd, &status, &c.DueDate, &c.TotalPayout,
		&snapshot, &c.CreatedBy, &c.FinalizedBy, &c.PaidAt, &c.CreatedAt, &c.UpdatedAt,
		&c.SlipCount,
	)
	if err != nil {
		return payroll.Cycle{}, err
	}
	c.Status = payroll.CycleStatus(status)
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &c.RateSnapshot); err != nil {
			return payroll.Cycle{}, fmt.Errorf("failed to unmarshal rate snapshot: %w", err)
		}
	}
	return c, nil
}

func (r *cycleRepository) Create(ctx context.Context, cycle payroll.Cycle) (payroll.Cycle, error) {
	q := GetQuerier(ctx, r.db)

	snapshot, err := json.Marshal(cycle.RateSnapshot)
	if err != nil {
		return payroll.Cycle{}, fmt.Errorf("failed to marshal rate snapshot: %w", err)
	}

	query := `
		INSERT INTO payroll_cycles (id, period_key, period_start, period_end, status, rate_snapshot, created_by)
		VALUES (uuidv7(), $1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err = q.QueryRow(ctx, query,
		cycle.PeriodKey, cycle.PeriodStart, cycle.PeriodEnd, string(cycle.Status), snapshot, cycle.CreatedBy,
	).Scan(&cycle.ID, &cycle.CreatedAt, &cycle.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "uk_payroll_cycles_period_key") {
			return payroll.Cycle{}, fmt.Errorf("%w: %s", payroll.ErrDuplicatePeriod, cycle.PeriodKey)
		}
		return payroll.Cycle{}, fmt.Errorf("failed to create payroll cycle: %w", err)
	}

	return cycle, nil
}

func (r *cycleRepository) GetByID(ctx context.Context, id string) (payroll.Cycle, error) {
	return r.getOne(ctx, "WHERE c.id = $1", id)
}

func (r *cycleRepository) GetByIDForUpdate(ctx context.Context, id string) (payroll.Cycle, error) {
	return r.getOne(ctx, "WHERE c.id = $1 FOR UPDATE OF c", id)
}

func (r *cycleRepository) GetByPeriodKey(ctx context.Context, periodKey string) (payroll.Cycle, error) {
	return r.getOne(ctx, "WHERE c.period_key = $1", periodKey)
}

func (r *cycleRepository) getOne(ctx context.Context, where string, arg any) (payroll.Cycle, error) {
	q := GetQuerier(ctx, r.db)

	query := "SELECT " + cycleColumns + " FROM payroll_cycles c " + where
	c, err := scanCycle(q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.Cycle{}, payroll.ErrCycleNotFound
		}
		return payroll.Cycle{}, fmt.Errorf("failed to get payroll cycle: %w", err)
	}
	return c, nil
}

func (r *cycleRepository) List(ctx context.Context, filter payroll.CycleFilter) ([]payroll.Cycle, int64, error) {
	q := GetQuerier(ctx, r.db)

	conditions := []string{"1 = 1"}
	args := []interface{}{}
	argIdx := 1

	if filter.ExcludeDraft {
		conditions = append(conditions, fmt.Sprintf("c.status <> $%d", argIdx))
		args = append(args, string(payroll.CycleStatusDraft))
		argIdx++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", argIdx))
		args = append(args, *filter.Status)
		argIdx++
	}
	if filter.PeriodKey != nil {
		conditions = append(conditions, fmt.Sprintf("c.period_key = $%d", argIdx))
		args = append(args, *filter.PeriodKey)
		argIdx++
	}
	whereClause := strings.Join(conditions, " AND ")

	var total int64
	countQuery := "SELECT COUNT(*) FROM payroll_cycles c WHERE " + whereClause
	if err := q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payroll cycles: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM payroll_cycles c
		WHERE %s
		ORDER BY c.period_key DESC
		LIMIT $%d OFFSET $%d
	`, cycleColumns, whereClause, argIdx, argIdx+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payroll cycles: %w", err)
	}
	defer rows.Close()

	cycles := make([]payroll.Cycle, 0, filter.Limit)
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan payroll cycle: %w", err)
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate payroll cycles: %w", err)
	}

	return cycles, total, nil
}

func (r *cycleRepository) UpdateStatus(ctx context.Context, id string, update payroll.CycleStatusUpdate) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE payroll_cycles
		SET status = $2,
			due_date = COALESCE($3, due_date),
			total_payout = COALESCE($4, total_payout),
			paid_at = COALESCE($5, paid_at),
			finalized_by = COALESCE($6, finalized_by),
			updated_at = NOW()
		WHERE id = $1
	`

	commandTag, err := q.Exec(ctx, query,
		id, string(update.Status), update.DueDate, update.TotalPayout, update.PaidAt, update.FinalizedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update payroll cycle status: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return payroll.ErrCycleNotFound
	}
	return nil
}

// Delete removes the cycle; its slips go with it through ON DELETE CASCADE.
func (r *cycleRepository) Delete(ctx context.Context, id string) error {
	q := GetQuerier(ctx, r.db)

	commandTag, err := q.Exec(ctx, `DELETE FROM payroll_cycles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payroll cycle: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return payroll.ErrCycleNotFound
	}
	return nil
}

// ========== SLIPS ==========

type slipRepository struct {
	db *database.DB
}

func NewSlipRepository(db *database.DB) payroll.SlipRepository {
	return &slipRepository{db: db}
}

const slipColumns = `
	id, cycle_id, user_id, employee_name,
	base_salary, ot_pay, bonus, commission, allowance, total_income,
	tax, social_security_contribution, leave_deduction, disciplinary_deduction,
	deduction_snapshot, advance_payment, total_deduction, net_total,
	status, dispute_reason, transfer_proof_ref, acknowledged_at, paid_at,
	version, created_at, updated_at`

func scanSlip(row rowScanner) (payroll.Slip, error) {
	var (
		s        payroll.Slip
		status   string
		snapshot []byte
	)
	err := row.Scan(
		&s.ID, &s.CycleID, &s.UserID, &s.EmployeeName,
		&s.BaseSalary, &s.OTPay, &s.Bonus, &s.Commission, &s.Allowance, &s.TotalIncome,
		&s.Tax, &s.SocialSecurityContribution, &s.LeaveDeduction, &s.DisciplinaryDeduction,
		&snapshot, &s.AdvancePayment, &s.TotalDeduction, &s.NetTotal,
		&status, &s.DisputeReason, &s.TransferProofRef, &s.AcknowledgedAt, &s.PaidAt,
		&s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return payroll.Slip{}, err
	}
	s.Status = payroll.SlipStatus(status)
	s.DeductionSnapshot = []payroll.DeductionItem{}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &s.DeductionSnapshot); err != nil {
			return payroll.Slip{}, fmt.Errorf("failed to unmarshal deduction snapshot: %w", err)
		}
	}
	return s, nil
}

// CreateMany queues one INSERT per slip in a single batch. Callers run it inside
// a transaction so a failing row discards the whole batch.
func (r *slipRepository) CreateMany(ctx context.Context, cycleID string, slips []payroll.Slip) ([]payroll.Slip, error) {
	if len(slips) == 0 {
		return []payroll.Slip{}, nil
	}
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO payroll_slips (
			id, cycle_id, user_id, employee_name,
			base_salary, ot_pay, bonus, commission, allowance, total_income,
			tax, social_security_contribution, leave_deduction, disciplinary_deduction,
			deduction_snapshot, advance_payment, total_deduction, net_total, status
		) VALUES (
			uuidv7(), $1, $2, $3,
			$4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17, $18
		)
		RETURNING ` + slipColumns

	batch := &pgx.Batch{}
	for _, s := range slips {
		snapshot, err := json.Marshal(nonNilItems(s.DeductionSnapshot))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal deduction snapshot: %w", err)
		}
		status := s.Status
		if status == "" {
			status = payroll.SlipStatusPending
		}
		batch.Queue(query,
			cycleID, s.UserID, s.EmployeeName,
			s.BaseSalary, s.OTPay, s.Bonus, s.Commission, s.Allowance, s.TotalIncome,
			s.Tax, s.SocialSecurityContribution, s.LeaveDeduction, s.DisciplinaryDeduction,
			snapshot, s.AdvancePayment, s.TotalDeduction, s.NetTotal, string(status),
		)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	created := make([]payroll.Slip, 0, len(slips))
	for range slips {
		s, err := scanSlip(results.QueryRow())
		if err != nil {
			if database.IsUniqueViolation(err, "uk_payroll_slips_cycle_user") {
				return nil, fmt.Errorf("%w: cycle %s", payroll.ErrDuplicateSlip, cycleID)
			}
			if database.IsForeignKeyViolation(err) {
				return nil, payroll.ErrCycleNotFound
			}
			return nil, fmt.Errorf("failed to create payroll slip: %w", err)
		}
		created = append(created, s)
	}

	return created, nil
}

func (r *slipRepository) GetByID(ctx context.Context, id string) (payroll.Slip, error) {
	q := GetQuerier(ctx, r.db)

	s, err := scanSlip(q.QueryRow(ctx, "SELECT "+slipColumns+" FROM payroll_slips WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.Slip{}, payroll.ErrSlipNotFound
		}
		return payroll.Slip{}, fmt.Errorf("failed to get payroll slip: %w", err)
	}
	return s, nil
}

func (r *slipRepository) ListByCycle(ctx context.Context, cycleID string) ([]payroll.Slip, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, "SELECT "+slipColumns+" FROM payroll_slips WHERE cycle_id = $1 ORDER BY employee_name, id", cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll slips: %w", err)
	}
	defer rows.Close()

	slips := []payroll.Slip{}
	for rows.Next() {
		s, err := scanSlip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payroll slip: %w", err)
		}
		slips = append(slips, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payroll slips: %w", err)
	}

	return slips, nil
}

func (r *slipRepository) Update(ctx context.Context, slip payroll.Slip) (payroll.Slip, error) {
	q := GetQuerier(ctx, r.db)

	snapshot, err := json.Marshal(nonNilItems(slip.DeductionSnapshot))
	if err != nil {
		return payroll.Slip{}, fmt.Errorf("failed to marshal deduction snapshot: %w", err)
	}

	query := `
		UPDATE payroll_slips SET
			employee_name = $3,
			base_salary = $4, ot_pay = $5, bonus = $6, commission = $7, allowance = $8, total_income = $9,
			tax = $10, social_security_contribution = $11, leave_deduction = $12, disciplinary_deduction = $13,
			deduction_snapshot = $14, advance_payment = $15, total_deduction = $16, net_total = $17,
			status = $18, dispute_reason = $19, transfer_proof_ref = $20, acknowledged_at = $21, paid_at = $22,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING ` + slipColumns

	updated, err := scanSlip(q.QueryRow(ctx, query,
		slip.ID, slip.Version,
		slip.EmployeeName,
		slip.BaseSalary, slip.OTPay, slip.Bonus, slip.Commission, slip.Allowance, slip.TotalIncome,
		slip.Tax, slip.SocialSecurityContribution, slip.LeaveDeduction, slip.DisciplinaryDeduction,
		snapshot, slip.AdvancePayment, slip.TotalDeduction, slip.NetTotal,
		string(slip.Status), slip.DisputeReason, slip.TransferProofRef, slip.AcknowledgedAt, slip.PaidAt,
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return payroll.Slip{}, fmt.Errorf("failed to update payroll slip: %w", err)
	}

	// No row matched: either the slip is gone or its version moved on
	var current int
	if err := q.QueryRow(ctx, `SELECT version FROM payroll_slips WHERE id = $1`, slip.ID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.Slip{}, payroll.ErrSlipNotFound
		}
		return payroll.Slip{}, fmt.Errorf("failed to read payroll slip version: %w", err)
	}
	return payroll.Slip{}, fmt.Errorf("%w: slip %s is at version %d, update was based on %d",
		payroll.ErrConcurrentModification, slip.ID, current, slip.Version)
}

func (r *slipRepository) MarkAllPaid(ctx context.Context, cycleID string, paidAt time.Time) (int64, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE payroll_slips
		SET status = $2, paid_at = $3, version = version + 1, updated_at = $3
		WHERE cycle_id = $1
	`

	commandTag, err := q.Exec(ctx, query, cycleID, string(payroll.SlipStatusPaid), paidAt)
	if err != nil {
		return 0, fmt.Errorf("failed to mark payroll slips paid: %w", err)
	}
	return commandTag.RowsAffected(), nil
}

func (r *slipRepository) Delete(ctx context.Context, id string) error {
	q := GetQuerier(ctx, r.db)

	commandTag, err := q.Exec(ctx, `DELETE FROM payroll_slips WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payroll slip: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return payroll.ErrSlipNotFound
	}
	return nil
}

func nonNilItems(items []payroll.DeductionItem) []payroll.DeductionItem {
	if items == nil {
		return []payroll.DeductionItem{}
	}
	return items
}

// ========== OUTBOX ==========

type outboxRepository struct {
	db *database.DB
}

func NewOutboxRepository(db *database.DB) payroll.OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Enqueue(ctx context.Context, events []payroll.OutboxEvent) ([]payroll.OutboxEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO payroll_outbox (id, kind, aggregate_id, payload)
		VALUES (uuidv7(), $1, $2, $3)
		RETURNING id, attempts, created_at
	`

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(query, string(e.Kind), e.AggregateID, e.Payload)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	stored := make([]payroll.OutboxEvent, 0, len(events))
	for _, e := range events {
		if err := results.QueryRow().Scan(&e.ID, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to enqueue outbox event: %w", err)
		}
		stored = append(stored, e)
	}
	return stored, nil
}

func (r *outboxRepository) ListPending(ctx context.Context, maxAttempts, limit int) ([]payroll.OutboxEvent, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, kind, aggregate_id, payload, attempts, last_error, delivered_at, created_at
		FROM payroll_outbox
		WHERE delivered_at IS NULL AND attempts < $1
		ORDER BY created_at, id
		LIMIT $2
	`

	rows, err := q.Query(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending outbox events: %w", err)
	}
	defer rows.Close()

	var events []payroll.OutboxEvent
	for rows.Next() {
		var (
			e    payroll.OutboxEvent
			kind string
		)
		if err := rows.Scan(&e.ID, &kind, &e.AggregateID, &e.Payload, &e.Attempts, &e.LastError, &e.DeliveredAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		e.Kind = payroll.OutboxKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *outboxRepository) MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE payroll_outbox
		SET delivered_at = $2, attempts = attempts + 1, last_error = NULL
		WHERE id = $1
	`
	if _, err := q.Exec(ctx, query, id, deliveredAt); err != nil {
		return fmt.Errorf("failed to mark outbox event delivered: %w", err)
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, lastErr string) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE payroll_outbox
		SET attempts = attempts + 1, last_error = $2
		WHERE id = $1
	`
	if _, err := q.Exec(ctx, query, id, lastErr); err != nil {
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}
	return nil
}

// ========== DEDUCTION RATES ==========

type deductionRateRepository struct {
	db *database.DB
}

func NewDeductionRateRepository(db *database.DB) payroll.DeductionRateRepository {
	return &deductionRateRepository{db: db}
}

func (r *deductionRateRepository) GetCurrent(ctx context.Context) (payroll.DeductionRates, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT version, late_rate_per_occurrence, absent_rate_per_day, missed_duty_rate_per_occurrence,
			   updated_at, updated_by
		FROM payroll_deduction_rates
		ORDER BY version DESC
		LIMIT 1
	`

	var rates payroll.DeductionRates
	err := q.QueryRow(ctx, query).Scan(
		&rates.Version, &rates.LateRatePerOccurrence, &rates.AbsentRatePerDay, &rates.MissedDutyRatePerOccurrence,
		&rates.UpdatedAt, &rates.UpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.DeductionRates{}, payroll.ErrDeductionRatesNotFound
		}
		return payroll.DeductionRates{}, fmt.Errorf("failed to get deduction rates: %w", err)
	}
	return rates, nil
}

// Save appends a version; the primary key on version rejects a concurrent writer.
func (r *deductionRateRepository) Save(ctx context.Context, rates payroll.DeductionRates) (payroll.DeductionRates, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO payroll_deduction_rates (
			version, late_rate_per_occurrence, absent_rate_per_day, missed_duty_rate_per_occurrence, updated_by
		)
		SELECT COALESCE(MAX(version), 0) + 1, $1, $2, $3, $4
		FROM payroll_deduction_rates
		RETURNING version, late_rate_per_occurrence, absent_rate_per_day, missed_duty_rate_per_occurrence,
			updated_at, updated_by
	`

	var saved payroll.DeductionRates
	err := q.QueryRow(ctx, query,
		rates.LateRatePerOccurrence, rates.AbsentRatePerDay, rates.MissedDutyRatePerOccurrence, rates.UpdatedBy,
	).Scan(
		&saved.Version, &saved.LateRatePerOccurrence, &saved.AbsentRatePerDay, &saved.MissedDutyRatePerOccurrence,
		&saved.UpdatedAt, &saved.UpdatedBy,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return payroll.DeductionRates{}, fmt.Errorf("%w: deduction rates were updated concurrently", payroll.ErrConcurrentModification)
		}
		return payroll.DeductionRates{}, fmt.Errorf("failed to save deduction rates: %w", err)
	}
	return saved, nil
}
