package payroll

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/cmlabs-hris/studio-payroll/internal/domain/user"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/validator"
)

// ========== QUERIES ==========

// ListSlips returns every slip of the cycle to privileged users and only the caller's own slip otherwise.
func (s *PayrollServiceImpl) ListSlips(ctx context.Context, cycleID string) ([]payroll.SlipResponse, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	cycle, privileged, err := s.visibleCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}

	slips, err := s.slipRepo.ListByCycle(ctx, cycle.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list slips: %w", err)
	}
	if privileged {
		return s.toSlipResponses(slips), nil
	}

	own := make([]payroll.Slip, 0, 1)
	for _, slip := range slips {
		if slip.UserID == actor.UserID {
			own = append(own, slip)
		}
	}
	return s.toSlipResponses(own), nil
}

func (s *PayrollServiceImpl) GetSlip(ctx context.Context, slipID string) (payroll.SlipResponse, error) {
	slip, err := s.readableSlip(ctx, slipID)
	if err != nil {
		return payroll.SlipResponse{}, err
	}
	return s.toSlipResponse(slip), nil
}

// readableSlip loads a slip the actor owns, or any slip for privileged users.
// Slips of DRAFT cycles are invisible to their owners.
func (s *PayrollServiceImpl) readableSlip(ctx context.Context, slipID string) (payroll.Slip, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return payroll.Slip{}, err
	}
	slip, err := s.slipRepo.GetByID(ctx, slipID)
	if err != nil {
		return payroll.Slip{}, err
	}
	if s.authorizer.IsPrivileged(actor) {
		return slip, nil
	}

	if slip.UserID != actor.UserID {
		return payroll.Slip{}, &payroll.ForbiddenError{
			UserID: actor.UserID,
			Role:   string(actor.Role),
			Action: "view slips of other employees",
		}
	}
	cycle, err := s.cycleRepo.GetByID(ctx, slip.CycleID)
	if err != nil {
		return payroll.Slip{}, err
	}
	if cycle.Status == payroll.CycleStatusDraft {
		return payroll.Slip{}, payroll.ErrSlipNotFound
	}
	return slip, nil
}

// ========== EMPLOYEE RESPONSE ==========

// RespondToSlip lets the slip owner acknowledge or dispute it while the cycle is under review.
// A dispute notifies every privileged employee in the directory.
func (s *PayrollServiceImpl) RespondToSlip(ctx context.Context, req payroll.RespondSlipRequest) (payroll.SlipResponse, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return payroll.SlipResponse{}, err
	}
	if err := req.Validate(); err != nil {
		return payroll.SlipResponse{}, err
	}

	var recipients []string
	if req.Action == payroll.SlipActionDispute {
		if recipients, err = s.privilegedRecipients(ctx); err != nil {
			return payroll.SlipResponse{}, err
		}
	}

	action := strings.ToLower(req.Action)
	var (
		result  payroll.Slip
		pending []payroll.OutboxEvent
	)
	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		slip, err := s.slipRepo.GetByID(txCtx, req.SlipID)
		if err != nil {
			return err
		}
		if slip.UserID != actor.UserID {
			return &payroll.ForbiddenError{
				UserID: actor.UserID,
				Role:   string(actor.Role),
				Action: action + " slips of other employees",
			}
		}

		cycle, err := s.cycleRepo.GetByIDForUpdate(txCtx, slip.CycleID)
		if err != nil {
			return err
		}
		if cycle.Status != payroll.CycleStatusWaitingReview {
			return &payroll.TransitionError{
				Entity:  "slip",
				ID:      slip.ID,
				Action:  action,
				From:    "cycle " + string(cycle.Status),
				Allowed: []string{"cycle " + string(payroll.CycleStatusWaitingReview)},
			}
		}

		// Re-read under the cycle lock
		if slip, err = s.slipRepo.GetByID(txCtx, req.SlipID); err != nil {
			return err
		}
		if slip.Status != payroll.SlipStatusPending {
			return &payroll.TransitionError{
				Entity:  "slip",
				ID:      slip.ID,
				Action:  action,
				From:    string(slip.Status),
				Allowed: []string{string(payroll.SlipStatusPending)},
			}
		}
		if err := checkVersion(slip, req.ExpectedVersion); err != nil {
			return err
		}

		now := s.now()
		switch req.Action {
		case payroll.SlipActionAcknowledge:
			slip.Status = payroll.SlipStatusAcknowledged
			slip.AcknowledgedAt = &now
		case payroll.SlipActionDispute:
			reason := strings.TrimSpace(*req.Reason)
			slip.Status = payroll.SlipStatusDisputed
			slip.DisputeReason = &reason
		}

		updated, err := s.slipRepo.Update(txCtx, slip)
		if err != nil {
			return err
		}

		if req.Action == payroll.SlipActionDispute && len(recipients) > 0 {
			event, err := newNotificationEvent(cycle.ID, payroll.NotificationMessage{
				UserIDs: recipients,
				Title:   "Payslip disputed",
				Message: fmt.Sprintf("%s disputed their payslip for %s: %s", employeeName(updated, actor), cycle.PeriodKey, *updated.DisputeReason),
				Kind:    payroll.NotificationKindSlipDisputed,
				CycleID: cycle.ID,
				SlipID:  updated.ID,
			})
			if err != nil {
				return err
			}
			if pending, err = s.enqueue(txCtx, []payroll.OutboxEvent{event}); err != nil {
				return fmt.Errorf("failed to enqueue dispute notification: %w", err)
			}
		}

		result = updated
		return nil
	})
	if err != nil {
		return payroll.SlipResponse{}, err
	}

	s.deliver(ctx, pending)
	s.logger.Info("payroll slip "+strings.ToLower(string(result.Status)),
		"slip_id", result.ID,
		"cycle_id", result.CycleID,
		"user_id", result.UserID,
	)
	return s.toSlipResponse(result), nil
}

// privilegedRecipients lists the directory entries that receive dispute notifications.
func (s *PayrollServiceImpl) privilegedRecipients(ctx context.Context) ([]string, error) {
	employees, err := s.directory.ListActiveEmployees(ctx)
	if err != nil {
		return nil, &payroll.UpstreamError{Collaborator: "directory", Op: "list active employees", Err: err}
	}
	var ids []string
	for _, emp := range employees {
		if s.authorizer.IsPrivilegedEmployee(emp) {
			ids = append(ids, emp.ID)
		}
	}
	if len(ids) == 0 {
		s.logger.Warn("no privileged employees to notify about slip dispute")
	}
	return ids, nil
}

func employeeName(slip payroll.Slip, actor user.Actor) string {
	switch {
	case slip.EmployeeName != "":
		return slip.EmployeeName
	case actor.Name != "":
		return actor.Name
	default:
		return slip.UserID
	}
}

// ========== ADMINISTRATIVE EDITS ==========

// EditSlip applies an HR override to a slip. Paid slips only take a transfer proof.
// An attached proof file is uploaded first; its reference is then stored with the rest of the patch.
func (s *PayrollServiceImpl) EditSlip(ctx context.Context, req payroll.EditSlipRequest) (payroll.SlipResponse, error) {
	actor, err := s.requirePrivileged(ctx, "edit payroll slips")
	if err != nil {
		return payroll.SlipResponse{}, err
	}
	if err := req.Validate(); err != nil {
		return payroll.SlipResponse{}, err
	}

	current, err := s.slipRepo.GetByID(ctx, req.SlipID)
	if err != nil {
		return payroll.SlipResponse{}, err
	}
	cycle, err := s.cycleRepo.GetByID(ctx, current.CycleID)
	if err != nil {
		return payroll.SlipResponse{}, err
	}
	if err := checkSlipEdit(cycle, current, req.SlipPatch); err != nil {
		return payroll.SlipResponse{}, err
	}

	patch := req.SlipPatch
	var uploadedRef string
	if req.Proof != nil {
		if s.proofStore == nil {
			return payroll.SlipResponse{}, validator.ValidationErrors{{Field: "proof", Message: "file uploads are not enabled"}}
		}
		ref, err := s.proofStore.UploadTransferProof(ctx, current.ID, req.Proof.Content, req.Proof.Filename)
		if err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				return payroll.SlipResponse{}, verrs
			}
			return payroll.SlipResponse{}, &payroll.UpstreamError{Collaborator: "file storage", Op: "upload transfer proof", Err: err}
		}
		patch.TransferProofRef = &ref
		uploadedRef = ref
	}

	var result payroll.Slip
	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		cycle, err := s.cycleRepo.GetByIDForUpdate(txCtx, current.CycleID)
		if err != nil {
			return err
		}

		slip, err := s.slipRepo.GetByID(txCtx, req.SlipID)
		if err != nil {
			return err
		}
		if err := checkVersion(slip, req.ExpectedVersion); err != nil {
			return err
		}
		if err := checkSlipEdit(cycle, slip, patch); err != nil {
			return err
		}

		patch.Apply(&slip, s.now())
		if result, err = s.slipRepo.Update(txCtx, slip); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if uploadedRef != "" {
			if delErr := s.proofStore.DeleteTransferProof(context.WithoutCancel(ctx), uploadedRef); delErr != nil {
				s.logger.Warn("orphaned transfer proof left in storage", "slip_id", req.SlipID, "ref", uploadedRef, "error", delErr)
			}
		}
		return payroll.SlipResponse{}, err
	}

	s.logger.Info("payroll slip edited",
		"slip_id", result.ID,
		"cycle_id", result.CycleID,
		"status", result.Status,
		"net_total", result.NetTotal.StringFixed(2),
		"version", result.Version,
		"actor_id", actor.UserID,
	)
	return s.toSlipResponse(result), nil
}

// DeleteSlip removes a slip from a cycle that is still DRAFT.
func (s *PayrollServiceImpl) DeleteSlip(ctx context.Context, slipID string) error {
	actor, err := s.requirePrivileged(ctx, "delete payroll slips")
	if err != nil {
		return err
	}

	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		slip, err := s.slipRepo.GetByID(txCtx, slipID)
		if err != nil {
			return err
		}
		cycle, err := s.cycleRepo.GetByIDForUpdate(txCtx, slip.CycleID)
		if err != nil {
			return err
		}
		if cycle.Status != payroll.CycleStatusDraft {
			return &payroll.TransitionError{
				Entity:  "slip",
				ID:      slip.ID,
				Action:  "delete",
				From:    "cycle " + string(cycle.Status),
				Allowed: []string{"cycle " + string(payroll.CycleStatusDraft)},
			}
		}
		return s.slipRepo.Delete(txCtx, slip.ID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("payroll slip deleted", "slip_id", slipID, "actor_id", actor.UserID)
	return nil
}

// checkSlipEdit guards what an HR patch may change. Once paid, a slip only
// accepts its transfer proof; its amounts back the posted ledger expense.
func checkSlipEdit(cycle payroll.Cycle, slip payroll.Slip, patch payroll.SlipPatch) error {
	paid := slip.Status == payroll.SlipStatusPaid || cycle.Status == payroll.CycleStatusPaid
	if paid && patch.Status != nil {
		return &payroll.TransitionError{
			Entity:  "slip",
			ID:      slip.ID,
			Action:  "change status of",
			From:    string(slip.Status),
			Allowed: []string{string(payroll.SlipStatusPending), string(payroll.SlipStatusAcknowledged), string(payroll.SlipStatusDisputed)},
			Reason:  "paid slips keep their status",
		}
	}
	if fields := patch.AmountFields(); paid && len(fields) > 0 {
		return &payroll.TransitionError{
			Entity: "slip",
			ID:     slip.ID,
			Action: "change amounts of",
			From:   string(slip.Status),
			Reason: "paid slips only accept a transfer proof (rejected fields: " + strings.Join(fields, ", ") + ")",
		}
	}
	if patch.Status != nil && payroll.SlipStatus(*patch.Status) == payroll.SlipStatusDisputed && cycle.Status == payroll.CycleStatusReadyToPay {
		return &payroll.TransitionError{
			Entity: "slip",
			ID:     slip.ID,
			Action: "dispute",
			From:   string(slip.Status),
			Reason: "cycle " + cycle.ID + " is READY_TO_PAY and no longer accepts disputes",
		}
	}
	return nil
}

func checkVersion(slip payroll.Slip, expected *int) error {
	if expected == nil || *expected == slip.Version {
		return nil
	}
	return fmt.Errorf("%w: slip %s is at version %d, request expected %d",
		payroll.ErrConcurrentModification, slip.ID, slip.Version, *expected)
}
