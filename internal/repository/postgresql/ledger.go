package postgresql

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/database"
)

type ledgerPoster struct {
	db *database.DB
}

// NewLedgerPoster writes expenses to the studio ledger table.
func NewLedgerPoster(db *database.DB) payroll.LedgerPoster {
	return &ledgerPoster{db: db}
}

// PostExpense inserts the entry once per idempotency key; replays are no-ops.
func (l *ledgerPoster) PostExpense(ctx context.Context, entry payroll.ExpenseEntry) error {
	q := GetQuerier(ctx, l.db)

	query := `
		INSERT INTO ledger_transactions (id, idempotency_key, type, category, amount, date, description)
		VALUES (uuidv7(), $1, 'EXPENSE', $2, $3, $4::date, $5)
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	_, err := q.Exec(ctx, query,
		entry.IdempotencyKey, entry.Category, entry.Amount, entry.Date.Format("2006-01-02"), entry.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to post ledger expense: %w", err)
	}
	return nil
}
