package payroll

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/cmlabs-hris/studio-payroll/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(maxAttempts int) (*Dispatcher, payroll.OutboxRepository, *memory.Notifier, *memory.Ledger) {
	store := memory.NewStore()
	outbox := memory.NewOutboxRepository(store)
	notifier := memory.NewNotifier()
	ledger := memory.NewLedger()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(outbox, notifier, ledger, DispatcherConfig{MaxAttempts: maxAttempts}, logger), outbox, notifier, ledger
}

func enqueueLedgerEvent(t *testing.T, outbox payroll.OutboxRepository, cycleID string, amount string) []payroll.OutboxEvent {
	t.Helper()
	event, err := newLedgerEvent(cycleID, payroll.ExpenseEntry{
		IdempotencyKey: ledgerIdempotencyKey(cycleID),
		Category:       payroll.ExpenseCategorySalary,
		Amount:         dec(amount),
		Description:    "Payroll test",
	})
	require.NoError(t, err)
	stored, err := outbox.Enqueue(context.Background(), []payroll.OutboxEvent{event})
	require.NoError(t, err)
	return stored
}

// ===== DISPATCHER TESTS =====

func TestDispatcher_Deliver_Notification(t *testing.T) {
	d, outbox, notifier, _ := newTestDispatcher(3)
	event, err := newNotificationEvent("cycle-1", payroll.NotificationMessage{
		UserIDs: []string{"emp-1", "emp-2"},
		Title:   "Payslip ready for review",
		Message: "hello",
		Kind:    payroll.NotificationKindReviewRequested,
	})
	require.NoError(t, err)
	stored, err := outbox.Enqueue(context.Background(), []payroll.OutboxEvent{event})
	require.NoError(t, err)

	// Act
	delivered := d.Deliver(context.Background(), stored)

	// Assert
	assert.Equal(t, 1, delivered)
	calls := notifier.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"emp-1", "emp-2"}, calls[0].UserIDs)
	assert.Equal(t, payroll.NotificationKindReviewRequested, calls[0].Kind)

	pending, err := outbox.ListPending(context.Background(), 3, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcher_RetryPending_StopsAfterMaxAttempts(t *testing.T) {
	d, outbox, _, ledger := newTestDispatcher(2)
	ledger.SetErr(errors.New("ledger offline"))
	stored := enqueueLedgerEvent(t, outbox, "cycle-1", "1000")

	// Act
	assert.Equal(t, 0, d.Deliver(context.Background(), stored))
	require.NoError(t, d.RetryPending(context.Background()))
	ledger.SetErr(nil)
	require.NoError(t, d.RetryPending(context.Background()))

	// Assert
	assert.Empty(t, ledger.Entries(), "exhausted events are no longer retried")
	pending, err := outbox.ListPending(context.Background(), 10, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)
	require.NotNil(t, pending[0].LastError)
	assert.Contains(t, *pending[0].LastError, "ledger offline")
}

func TestDispatcher_Replay_PostsExpenseOnce(t *testing.T) {
	d, outbox, _, ledger := newTestDispatcher(3)
	first := enqueueLedgerEvent(t, outbox, "cycle-1", "56350")
	second := enqueueLedgerEvent(t, outbox, "cycle-1", "56350")

	// Act
	d.Deliver(context.Background(), first)
	d.Deliver(context.Background(), second)

	// Assert
	assert.Equal(t, 2, ledger.Posts())
	require.Len(t, ledger.Entries(), 1)
	assert.Equal(t, "payroll-cycle:cycle-1", ledger.Entries()[0].IdempotencyKey)
}

func TestDispatcher_Deliver_UnknownKind(t *testing.T) {
	d, outbox, notifier, ledger := newTestDispatcher(3)
	stored, err := outbox.Enqueue(context.Background(), []payroll.OutboxEvent{{Kind: "fax", AggregateID: "cycle-1", Payload: []byte(`{}`)}})
	require.NoError(t, err)

	// Act
	delivered := d.Deliver(context.Background(), stored)

	// Assert
	assert.Equal(t, 0, delivered)
	assert.Empty(t, notifier.Calls())
	assert.Zero(t, ledger.Posts())
}
