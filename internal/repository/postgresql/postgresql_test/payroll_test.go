package postgresql_test

import (
	"context"
	"testing"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/cmlabs-hris/studio-payroll/internal/repository/postgresql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPeriod(t *testing.T) payroll.Period {
	t.Helper()
	period, err := payroll.ParsePeriod("2024-06", time.UTC)
	require.NoError(t, err)
	return period
}

func seedEmployee(t *testing.T, setup *TestDatabaseSetup, email, name, role string, salary string) string {
	t.Helper()
	ctx := context.Background()

	var userID string
	err := setup.DB.QueryRow(ctx,
		`INSERT INTO users (email, role) VALUES ($1, $2) RETURNING id`, email, role,
	).Scan(&userID)
	require.NoError(t, err)

	_, err = setup.DB.Exec(ctx, `
		INSERT INTO employees (user_id, full_name, base_salary, social_security_included, tax_scheme)
		VALUES ($1, $2, $3, true, 'WHT_3')
	`, userID, name, salary)
	require.NoError(t, err)

	return userID
}

func newCycle(t *testing.T, repo payroll.CycleRepository) payroll.Cycle {
	t.Helper()
	period := testPeriod(t)
	cycle, err := repo.Create(context.Background(), payroll.Cycle{
		PeriodKey:   period.Key,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		Status:      payroll.CycleStatusDraft,
		RateSnapshot: payroll.DeductionRates{
			Version:                     1,
			LateRatePerOccurrence:       decimal.NewFromInt(50),
			AbsentRatePerDay:            decimal.NewFromInt(300),
			MissedDutyRatePerOccurrence: decimal.NewFromInt(100),
		},
		CreatedBy: "hr-1",
	})
	require.NoError(t, err)
	return cycle
}

func draftSlip(userID, name string) payroll.Slip {
	s := payroll.Slip{
		UserID:                     userID,
		EmployeeName:               name,
		BaseSalary:                 decimal.NewFromInt(30000),
		Tax:                        decimal.NewFromInt(900),
		SocialSecurityContribution: decimal.NewFromInt(750),
		DeductionSnapshot: []payroll.DeductionItem{
			{
				Date:    time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
				Type:    payroll.DeductionTypeLate,
				Details: "Late arrival at 10:15",
				Amount:  decimal.NewFromInt(50),
			},
		},
		DisciplinaryDeduction: decimal.NewFromInt(50),
		Status:                payroll.SlipStatusPending,
	}
	s.Recalculate()
	return s
}

// ===== CYCLE REPOSITORY TESTS =====

func TestCycleRepository_Create_RejectsDuplicatePeriod(t *testing.T) {
	setup := NewTestDatabase(t)
	repo := postgresql.NewCycleRepository(setup.DB)

	cycle := newCycle(t, repo)
	assert.NotEmpty(t, cycle.ID)

	_, err := repo.Create(context.Background(), payroll.Cycle{
		PeriodKey:   cycle.PeriodKey,
		PeriodStart: cycle.PeriodStart,
		PeriodEnd:   cycle.PeriodEnd,
		Status:      payroll.CycleStatusDraft,
		CreatedBy:   "hr-1",
	})
	assert.ErrorIs(t, err, payroll.ErrDuplicatePeriod)
}

func TestCycleRepository_UpdateStatus_And_List(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	repo := postgresql.NewCycleRepository(setup.DB)
	cycle := newCycle(t, repo)

	due := time.Date(2024, 7, 5, 0, 0, 0, 0, time.UTC)
	err := repo.UpdateStatus(ctx, cycle.ID, payroll.CycleStatusUpdate{
		Status:  payroll.CycleStatusWaitingReview,
		DueDate: &due,
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.CycleStatusWaitingReview, got.Status)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, "2024-07-05", got.DueDate.Format("2006-01-02"))
	assert.True(t, got.RateSnapshot.AbsentRatePerDay.Equal(decimal.NewFromInt(300)))

	cycles, total, err := repo.List(ctx, payroll.CycleFilter{ExcludeDraft: true, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, cycles, 1)
}

func TestCycleRepository_GetByID_NotFound(t *testing.T) {
	setup := NewTestDatabase(t)
	repo := postgresql.NewCycleRepository(setup.DB)

	_, err := repo.GetByID(context.Background(), "01890000-0000-7000-8000-000000000000")
	assert.ErrorIs(t, err, payroll.ErrCycleNotFound)
}

// ===== SLIP REPOSITORY TESTS =====

func TestSlipRepository_CreateMany_And_Update(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	cycles := postgresql.NewCycleRepository(setup.DB)
	slips := postgresql.NewSlipRepository(setup.DB)
	cycle := newCycle(t, cycles)

	created, err := slips.CreateMany(ctx, cycle.ID, []payroll.Slip{
		draftSlip("user-a", "Alice"),
		draftSlip("user-b", "Bob"),
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, 1, created[0].Version)
	require.Len(t, created[0].DeductionSnapshot, 1)
	assert.Equal(t, payroll.DeductionTypeLate, created[0].DeductionSnapshot[0].Type)

	slip := created[0]
	slip.Status = payroll.SlipStatusAcknowledged
	updated, err := slips.Update(ctx, slip)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	// Act - write with the stale version
	_, err = slips.Update(ctx, slip)

	// Assert
	assert.ErrorIs(t, err, payroll.ErrConcurrentModification)

	got, err := cycles.GetByID(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.SlipCount)
}

func TestSlipRepository_CreateMany_DuplicateUserRollsBack(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	cycles := postgresql.NewCycleRepository(setup.DB)
	slips := postgresql.NewSlipRepository(setup.DB)
	tx := postgresql.NewTransactor(setup.DB)
	cycle := newCycle(t, cycles)

	err := tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		_, err := slips.CreateMany(txCtx, cycle.ID, []payroll.Slip{
			draftSlip("user-a", "Alice"),
			draftSlip("user-a", "Alice"),
		})
		return err
	})
	assert.ErrorIs(t, err, payroll.ErrDuplicateSlip)

	list, err := slips.ListByCycle(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSlipRepository_MarkAllPaid(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	cycles := postgresql.NewCycleRepository(setup.DB)
	slips := postgresql.NewSlipRepository(setup.DB)
	cycle := newCycle(t, cycles)

	_, err := slips.CreateMany(ctx, cycle.ID, []payroll.Slip{draftSlip("user-a", "Alice"), draftSlip("user-b", "Bob")})
	require.NoError(t, err)

	n, err := slips.MarkAllPaid(ctx, cycle.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	list, err := slips.ListByCycle(ctx, cycle.ID)
	require.NoError(t, err)
	for _, s := range list {
		assert.Equal(t, payroll.SlipStatusPaid, s.Status)
		assert.NotNil(t, s.PaidAt)
	}
}

// ===== DEDUCTION RATE REPOSITORY TESTS =====

func TestDeductionRateRepository_SaveIncrementsVersion(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	repo := postgresql.NewDeductionRateRepository(setup.DB)

	_, err := repo.GetCurrent(ctx)
	assert.ErrorIs(t, err, payroll.ErrDeductionRatesNotFound)

	rates := payroll.DeductionRates{
		LateRatePerOccurrence:       decimal.NewFromInt(50),
		AbsentRatePerDay:            decimal.NewFromInt(300),
		MissedDutyRatePerOccurrence: decimal.NewFromInt(100),
	}
	first, err := repo.Save(ctx, rates)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	rates.LateRatePerOccurrence = decimal.NewFromInt(75)
	second, err := repo.Save(ctx, rates)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)

	current, err := repo.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, current.Version)
	assert.True(t, current.LateRatePerOccurrence.Equal(decimal.NewFromInt(75)))
}

// ===== OUTBOX REPOSITORY TESTS =====

func TestOutboxRepository_PendingLifecycle(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	repo := postgresql.NewOutboxRepository(setup.DB)
	cycle := newCycle(t, postgresql.NewCycleRepository(setup.DB))

	stored, err := repo.Enqueue(ctx, []payroll.OutboxEvent{
		{Kind: payroll.OutboxKindNotification, AggregateID: cycle.ID, Payload: []byte(`{"title":"a"}`)},
		{Kind: payroll.OutboxKindLedgerExpense, AggregateID: cycle.ID, Payload: []byte(`{"amount":"1"}`)},
	})
	require.NoError(t, err)
	require.Len(t, stored, 2)

	require.NoError(t, repo.MarkDelivered(ctx, stored[0].ID, time.Now()))
	require.NoError(t, repo.MarkFailed(ctx, stored[1].ID, "ledger unavailable"))

	pending, err := repo.ListPending(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, stored[1].ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].Attempts)

	pending, err = repo.ListPending(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// ===== COLLABORATOR ADAPTER TESTS =====

func TestEmployeeDirectory_ListActiveEmployees(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	aliceID := seedEmployee(t, setup, "alice@studio.test", "Alice", "employee", "30000")
	seedEmployee(t, setup, "owner@studio.test", "Olivia", "owner", "50000")

	dir := postgresql.NewEmployeeDirectory(setup.DB)
	employees, err := dir.ListActiveEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, employees, 2)
	assert.Equal(t, "Alice", employees[0].FullName)
	assert.Equal(t, aliceID, employees[0].ID)
	assert.True(t, employees[0].BaseSalary.Equal(decimal.NewFromInt(30000)))
	assert.Equal(t, payroll.TaxSchemeWHT3, employees[0].TaxScheme)

	_, err = dir.GetEmployee(ctx, "01890000-0000-7000-8000-000000000000")
	assert.ErrorIs(t, err, payroll.ErrEmployeeNotFound)
}

func TestAttendanceFeed_GetAttendance_HalfOpenRange(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	userID := seedEmployee(t, setup, "alice@studio.test", "Alice", "employee", "30000")

	_, err := setup.DB.Exec(ctx, `
		INSERT INTO attendances (employee_id, date, status, clock_in)
		SELECT e.id, d.date, 'LATE', d.date + TIME '10:15'
		FROM employees e, (VALUES (DATE '2024-06-03'), (DATE '2024-07-01')) AS d(date)
		WHERE e.user_id = $1
	`, userID)
	require.NoError(t, err)

	period := testPeriod(t)
	records, err := postgresql.NewAttendanceFeed(setup.DB, time.UTC).GetAttendance(ctx, period.Start, period.End)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, userID, records[0].UserID)
	assert.Equal(t, 3, records[0].Date.Day())
}

func TestLedgerPoster_PostExpense_Idempotent(t *testing.T) {
	setup := NewTestDatabase(t)
	ctx := context.Background()
	poster := postgresql.NewLedgerPoster(setup.DB)

	entry := payroll.ExpenseEntry{
		IdempotencyKey: "payroll-cycle:abc",
		Category:       payroll.ExpenseCategorySalary,
		Amount:         decimal.RequireFromString("56350.00"),
		Date:           time.Date(2024, 7, 5, 0, 0, 0, 0, time.UTC),
		Description:    "Payroll 2024-06 (2 employees)",
	}
	require.NoError(t, poster.PostExpense(ctx, entry))
	require.NoError(t, poster.PostExpense(ctx, entry))

	var count int
	require.NoError(t, setup.DB.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_transactions`).Scan(&count))
	assert.Equal(t, 1, count)
}
