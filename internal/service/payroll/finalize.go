package payroll

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

// FinalizeCycle pays out a reviewed cycle. Inside one transaction it records the total
// payout, marks every slip PAID and enqueues the salary expense and the payment
// notifications; both are delivered after commit.
func (s *PayrollServiceImpl) FinalizeCycle(ctx context.Context, cycleID string) (payroll.CycleResponse, error) {
	actor, err := s.requirePrivileged(ctx, "finalize payroll cycles")
	if err != nil {
		return payroll.CycleResponse{}, err
	}

	now := s.now()
	var (
		result   payroll.Cycle
		pending  []payroll.OutboxEvent
		disputed int
	)
	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		cycle, err := s.cycleRepo.GetByIDForUpdate(txCtx, cycleID)
		if err != nil {
			return err
		}
		if cycle.Status != payroll.CycleStatusWaitingReview && cycle.Status != payroll.CycleStatusReadyToPay {
			return &payroll.TransitionError{
				Entity:  "cycle",
				ID:      cycle.ID,
				Action:  "finalize",
				From:    string(cycle.Status),
				Allowed: []string{string(payroll.CycleStatusWaitingReview), string(payroll.CycleStatusReadyToPay)},
			}
		}

		slips, err := s.slipRepo.ListByCycle(txCtx, cycle.ID)
		if err != nil {
			return fmt.Errorf("failed to list slips: %w", err)
		}

		total := decimal.Zero
		for _, slip := range slips {
			total = total.Add(slip.NetTotal)
			if slip.Status == payroll.SlipStatusDisputed {
				disputed++
			}
		}
		total = total.Round(2)

		if err := s.cycleRepo.UpdateStatus(txCtx, cycle.ID, payroll.CycleStatusUpdate{
			Status:      payroll.CycleStatusPaid,
			DueDate:     cycle.DueDate,
			TotalPayout: &total,
			PaidAt:      &now,
			FinalizedBy: &actor.UserID,
		}); err != nil {
			return fmt.Errorf("failed to update cycle status: %w", err)
		}
		if _, err := s.slipRepo.MarkAllPaid(txCtx, cycle.ID, now); err != nil {
			return fmt.Errorf("failed to mark slips paid: %w", err)
		}

		events := make([]payroll.OutboxEvent, 0, len(slips)+1)
		expense, err := newLedgerEvent(cycle.ID, payroll.ExpenseEntry{
			IdempotencyKey: ledgerIdempotencyKey(cycle.ID),
			Category:       payroll.ExpenseCategorySalary,
			Amount:         total,
			Date:           now.In(s.loc),
			Description:    fmt.Sprintf("Payroll %s (%d employees)", cycle.PeriodKey, len(slips)),
		})
		if err != nil {
			return err
		}
		events = append(events, expense)

		for _, slip := range slips {
			event, err := newNotificationEvent(cycle.ID, payroll.NotificationMessage{
				UserIDs: []string{slip.UserID},
				Title:   "Salary paid",
				Message: fmt.Sprintf("Your salary for %s has been paid. Net amount: %s.", cycle.PeriodKey, slip.NetTotal.StringFixed(2)),
				Kind:    payroll.NotificationKindCyclePaid,
				CycleID: cycle.ID,
				SlipID:  slip.ID,
			})
			if err != nil {
				return err
			}
			events = append(events, event)
		}
		if pending, err = s.enqueue(txCtx, events); err != nil {
			return fmt.Errorf("failed to enqueue payout side effects: %w", err)
		}

		cycle.Status = payroll.CycleStatusPaid
		cycle.TotalPayout = &total
		cycle.PaidAt = &now
		cycle.FinalizedBy = &actor.UserID
		cycle.SlipCount = len(slips)
		result = cycle
		return nil
	})
	if err != nil {
		return payroll.CycleResponse{}, err
	}

	s.deliver(ctx, pending)

	if disputed > 0 {
		s.logger.Warn("payroll cycle finalized with disputed slips", "cycle_id", result.ID, "disputed", disputed)
	}
	s.logger.Info("payroll cycle finalized",
		"cycle_id", result.ID,
		"period", result.PeriodKey,
		"total_payout", result.TotalPayout.StringFixed(2),
		"slips", result.SlipCount,
		"actor_id", actor.UserID,
	)
	return mapToCycleResponse(result), nil
}
