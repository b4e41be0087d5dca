package payroll

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
)

// DispatcherConfig bounds outbox redelivery.
type DispatcherConfig struct {
	MaxAttempts     int           // default: 10
	BatchSize       int           // default: 100
	DeliveryTimeout time.Duration // default: 15 seconds
}

// Dispatcher delivers outbox events to the notifier and the ledger. Events are
// delivered once right after the transaction that recorded them commits; anything
// that fails stays pending and is picked up by RetryPending.
type Dispatcher struct {
	outbox   payroll.OutboxRepository
	notifier payroll.Notifier
	ledger   payroll.LedgerPoster
	cfg      DispatcherConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewDispatcher(
	outbox payroll.OutboxRepository,
	notifier payroll.Notifier,
	ledger payroll.LedgerPoster,
	cfg DispatcherConfig,
	logger *slog.Logger,
) *Dispatcher {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.DeliveryTimeout == 0 {
		cfg.DeliveryTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		outbox:   outbox,
		notifier: notifier,
		ledger:   ledger,
		cfg:      cfg,
		logger:   logger.With("component", "payroll_outbox"),
		now:      time.Now,
	}
}

// Deliver attempts each event once and returns how many were delivered.
// It keeps going after a failure; the caller's request is never failed by delivery.
func (d *Dispatcher) Deliver(ctx context.Context, events []payroll.OutboxEvent) int {
	if len(events) == 0 {
		return 0
	}

	// Delivery outlives the request that triggered it
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.DeliveryTimeout)
	defer cancel()

	delivered := 0
	for _, event := range events {
		if d.deliverOne(ctx, event) {
			delivered++
		}
	}
	return delivered
}

// RetryPending redelivers events still pending, oldest first. Registered as a cron job.
func (d *Dispatcher) RetryPending(ctx context.Context) error {
	events, err := d.outbox.ListPending(ctx, d.cfg.MaxAttempts, d.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list pending outbox events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	delivered := d.Deliver(ctx, events)
	d.logger.Info("outbox retry pass finished", "pending", len(events), "delivered", delivered)
	return nil
}

func (d *Dispatcher) deliverOne(ctx context.Context, event payroll.OutboxEvent) bool {
	err := d.send(ctx, event)
	if err == nil {
		if markErr := d.outbox.MarkDelivered(ctx, event.ID, d.now()); markErr != nil {
			// Delivered but not recorded; the next pass replays it (at-least-once)
			d.logger.Error("failed to mark outbox event delivered", "event_id", event.ID, "error", markErr)
		}
		return true
	}

	attempt := event.Attempts + 1
	if markErr := d.outbox.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
		d.logger.Error("failed to record outbox failure", "event_id", event.ID, "error", markErr)
	}
	attrs := []any{
		"event_id", event.ID,
		"kind", event.Kind,
		"cycle_id", event.AggregateID,
		"attempt", attempt,
		"max_attempts", d.cfg.MaxAttempts,
		"error", err,
	}
	if attempt >= d.cfg.MaxAttempts {
		d.logger.Error("outbox event exhausted its retries", attrs...)
	} else {
		d.logger.Warn("outbox event delivery failed, will retry", attrs...)
	}
	return false
}

func (d *Dispatcher) send(ctx context.Context, event payroll.OutboxEvent) error {
	switch event.Kind {
	case payroll.OutboxKindNotification:
		var msg payroll.NotificationMessage
		if err := json.Unmarshal(event.Payload, &msg); err != nil {
			return fmt.Errorf("decode notification payload: %w", err)
		}
		if err := d.notifier.Notify(ctx, msg.UserIDs, msg.Title, msg.Message, msg.Kind); err != nil {
			return &payroll.UpstreamError{Collaborator: "notifier", Op: "notify", Err: err}
		}
		return nil
	case payroll.OutboxKindLedgerExpense:
		var entry payroll.ExpenseEntry
		if err := json.Unmarshal(event.Payload, &entry); err != nil {
			return fmt.Errorf("decode expense payload: %w", err)
		}
		if err := d.ledger.PostExpense(ctx, entry); err != nil {
			return &payroll.UpstreamError{Collaborator: "ledger", Op: "post expense", Err: err}
		}
		return nil
	default:
		return fmt.Errorf("unknown outbox event kind %q", event.Kind)
	}
}

func newNotificationEvent(cycleID string, msg payroll.NotificationMessage) (payroll.OutboxEvent, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return payroll.OutboxEvent{}, fmt.Errorf("encode notification payload: %w", err)
	}
	return payroll.OutboxEvent{
		Kind:        payroll.OutboxKindNotification,
		AggregateID: cycleID,
		Payload:     payload,
	}, nil
}

func newLedgerEvent(cycleID string, entry payroll.ExpenseEntry) (payroll.OutboxEvent, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return payroll.OutboxEvent{}, fmt.Errorf("encode expense payload: %w", err)
	}
	return payroll.OutboxEvent{
		Kind:        payroll.OutboxKindLedgerExpense,
		AggregateID: cycleID,
		Payload:     payload,
	}, nil
}

// ledgerIdempotencyKey ties the salary expense to its cycle so replays post once.
func ledgerIdempotencyKey(cycleID string) string {
	return "payroll-cycle:" + cycleID
}
