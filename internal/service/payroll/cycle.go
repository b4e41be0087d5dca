package payroll

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/validator"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ========== GENERATION ==========

// GenerateCycle builds a DRAFT cycle with one computed slip per selected active employee.
// All collaborator reads happen before the transaction; a failure there leaves no trace.
func (s *PayrollServiceImpl) GenerateCycle(ctx context.Context, req payroll.GenerateCycleRequest) (payroll.CycleResponse, error) {
	actor, err := s.requirePrivileged(ctx, "generate payroll cycles")
	if err != nil {
		return payroll.CycleResponse{}, err
	}
	if err := req.Validate(); err != nil {
		return payroll.CycleResponse{}, err
	}

	period, err := payroll.ParsePeriod(req.PeriodKey, s.loc)
	if err != nil {
		return payroll.CycleResponse{}, err
	}

	if existing, err := s.cycleRepo.GetByPeriodKey(ctx, period.Key); err == nil {
		return payroll.CycleResponse{}, fmt.Errorf("%w: %s (cycle %s)", payroll.ErrDuplicatePeriod, period.Key, existing.ID)
	} else if !errors.Is(err, payroll.ErrCycleNotFound) {
		return payroll.CycleResponse{}, fmt.Errorf("failed to check existing cycle: %w", err)
	}

	employees, err := s.selectEmployees(ctx, req.EmployeeIDs)
	if err != nil {
		return payroll.CycleResponse{}, err
	}

	attendance, duties, err := s.loadFeeds(ctx, period)
	if err != nil {
		s.logger.Error("payroll generation aborted", "period", period.Key, "error", err)
		return payroll.CycleResponse{}, err
	}

	rates, _, err := s.currentRates(ctx)
	if err != nil {
		return payroll.CycleResponse{}, fmt.Errorf("failed to load deduction rates: %w", err)
	}

	drafts := make([]payroll.Slip, 0, len(employees))
	for _, emp := range employees {
		drafts = append(drafts, s.calculator.ComputeSlipDraft(emp, period, attendance, duties, rates))
	}

	var created payroll.Cycle
	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		cycle, err := s.cycleRepo.Create(txCtx, payroll.Cycle{
			PeriodKey:    period.Key,
			PeriodStart:  period.Start,
			PeriodEnd:    period.End,
			Status:       payroll.CycleStatusDraft,
			RateSnapshot: rates,
			CreatedBy:    actor.UserID,
		})
		if err != nil {
			return err
		}

		slips, err := s.slipRepo.CreateMany(txCtx, cycle.ID, drafts)
		if err != nil {
			return fmt.Errorf("failed to create slips: %w", err)
		}
		cycle.SlipCount = len(slips)
		created = cycle
		return nil
	})
	if err != nil {
		return payroll.CycleResponse{}, err
	}

	s.logger.Info("payroll cycle generated",
		"cycle_id", created.ID,
		"period", created.PeriodKey,
		"slips", created.SlipCount,
		"rates_version", rates.Version,
		"actor_id", actor.UserID,
	)
	return mapToCycleResponse(created), nil
}

// selectEmployees returns the active roster, narrowed to ids when given.
func (s *PayrollServiceImpl) selectEmployees(ctx context.Context, ids []string) ([]payroll.EmployeeProfile, error) {
	if len(ids) == 0 {
		active, err := s.directory.ListActiveEmployees(ctx)
		if err != nil {
			return nil, &payroll.UpstreamError{Collaborator: "directory", Op: "list active employees", Err: err}
		}
		return sortByName(active)
	}

	active := make([]payroll.EmployeeProfile, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	var unknown []string
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		emp, err := s.directory.GetEmployee(ctx, id)
		if errors.Is(err, payroll.ErrEmployeeNotFound) {
			unknown = append(unknown, id)
			continue
		}
		if err != nil {
			return nil, &payroll.UpstreamError{Collaborator: "directory", Op: "get employee", Err: err}
		}
		active = append(active, emp)
	}
	if len(unknown) > 0 {
		return nil, validator.ValidationErrors{{
			Field:   "employee_ids",
			Message: "unknown or inactive employees: " + strings.Join(unknown, ", "),
		}}
	}
	return sortByName(active)
}

func sortByName(active []payroll.EmployeeProfile) ([]payroll.EmployeeProfile, error) {
	if len(active) == 0 {
		return nil, payroll.ErrNoEligibleEmployees
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].FullName < active[j].FullName
	})
	return active, nil
}

// loadFeeds fetches attendance and duties concurrently under the feed timeout.
func (s *PayrollServiceImpl) loadFeeds(ctx context.Context, period payroll.Period) ([]payroll.AttendanceRecord, []payroll.DutyRecord, error) {
	feedCtx, cancel := context.WithTimeout(ctx, s.feedTimeout)
	defer cancel()

	var (
		attendance []payroll.AttendanceRecord
		duties     []payroll.DutyRecord
	)

	g, gctx := errgroup.WithContext(feedCtx)
	g.Go(func() error {
		records, err := s.attendanceFeed.GetAttendance(gctx, period.Start, period.End)
		if err != nil {
			return &payroll.UpstreamError{Collaborator: "attendance feed", Op: "get attendance", Err: s.timeoutCause(err)}
		}
		attendance = records
		return nil
	})
	g.Go(func() error {
		records, err := s.dutyFeed.GetDuties(gctx, period.Start, period.End)
		if err != nil {
			return &payroll.UpstreamError{Collaborator: "duty feed", Op: "get duties", Err: s.timeoutCause(err)}
		}
		duties = records
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return attendance, duties, nil
}

func (s *PayrollServiceImpl) timeoutCause(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("no response within %s: %w", s.feedTimeout, err)
	}
	return err
}

// ========== QUERIES ==========

func (s *PayrollServiceImpl) ListCycles(ctx context.Context, filter payroll.CycleFilter) (payroll.ListCycleResponse, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return payroll.ListCycleResponse{}, err
	}
	if err := filter.Validate(); err != nil {
		return payroll.ListCycleResponse{}, err
	}
	filter.Normalize()
	filter.ExcludeDraft = !s.authorizer.IsPrivileged(actor)

	cycles, total, err := s.cycleRepo.List(ctx, filter)
	if err != nil {
		return payroll.ListCycleResponse{}, fmt.Errorf("failed to list cycles: %w", err)
	}

	data := make([]payroll.CycleResponse, 0, len(cycles))
	for _, c := range cycles {
		data = append(data, mapToCycleResponse(c))
	}

	return payroll.ListCycleResponse{
		Data:       data,
		TotalCount: total,
		Page:       filter.Page,
		Limit:      filter.Limit,
	}, nil
}

// GetCycle hides DRAFT cycles from employees without privilege.
func (s *PayrollServiceImpl) GetCycle(ctx context.Context, cycleID string) (payroll.CycleResponse, error) {
	cycle, _, err := s.visibleCycle(ctx, cycleID)
	if err != nil {
		return payroll.CycleResponse{}, err
	}
	return mapToCycleResponse(cycle), nil
}

func (s *PayrollServiceImpl) GetCycleSummary(ctx context.Context, cycleID string) (payroll.CycleSummaryResponse, error) {
	if _, err := s.requirePrivileged(ctx, "view payroll summaries"); err != nil {
		return payroll.CycleSummaryResponse{}, err
	}

	cycle, err := s.cycleRepo.GetByID(ctx, cycleID)
	if err != nil {
		return payroll.CycleSummaryResponse{}, err
	}
	slips, err := s.slipRepo.ListByCycle(ctx, cycleID)
	if err != nil {
		return payroll.CycleSummaryResponse{}, fmt.Errorf("failed to list slips: %w", err)
	}

	summary := payroll.CycleSummaryResponse{
		CycleID:           cycle.ID,
		PeriodKey:         cycle.PeriodKey,
		Status:            string(cycle.Status),
		TotalSlips:        len(slips),
		TotalIncome:       decimal.Zero,
		TotalDeduction:    decimal.Zero,
		TotalDisciplinary: decimal.Zero,
		TotalNet:          decimal.Zero,
		TotalPayout:       cycle.TotalPayout,
	}
	for _, slip := range slips {
		switch slip.Status {
		case payroll.SlipStatusPending:
			summary.PendingCount++
		case payroll.SlipStatusAcknowledged:
			summary.AcknowledgedCount++
		case payroll.SlipStatusDisputed:
			summary.DisputedCount++
		case payroll.SlipStatusPaid:
			summary.PaidCount++
		}
		summary.TotalIncome = summary.TotalIncome.Add(slip.TotalIncome)
		summary.TotalDeduction = summary.TotalDeduction.Add(slip.TotalDeduction)
		summary.TotalDisciplinary = summary.TotalDisciplinary.Add(slip.DisciplinaryDeduction)
		summary.TotalNet = summary.TotalNet.Add(slip.NetTotal)
	}
	return summary, nil
}

// ========== LIFECYCLE ==========

func (s *PayrollServiceImpl) DeleteCycle(ctx context.Context, cycleID string) error {
	actor, err := s.requirePrivileged(ctx, "delete payroll cycles")
	if err != nil {
		return err
	}

	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		cycle, err := s.cycleRepo.GetByIDForUpdate(txCtx, cycleID)
		if err != nil {
			return err
		}
		if cycle.Status != payroll.CycleStatusDraft {
			return &payroll.TransitionError{
				Entity:  "cycle",
				ID:      cycle.ID,
				Action:  "delete",
				From:    string(cycle.Status),
				Allowed: []string{string(payroll.CycleStatusDraft)},
			}
		}
		return s.cycleRepo.Delete(txCtx, cycle.ID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("payroll cycle deleted", "cycle_id", cycleID, "actor_id", actor.UserID)
	return nil
}

// SendToReview publishes a DRAFT cycle to its employees and notifies each slip owner.
func (s *PayrollServiceImpl) SendToReview(ctx context.Context, req payroll.SendToReviewRequest) (payroll.CycleResponse, error) {
	actor, err := s.requirePrivileged(ctx, "send payroll cycles to review")
	if err != nil {
		return payroll.CycleResponse{}, err
	}
	if err := req.Validate(); err != nil {
		return payroll.CycleResponse{}, err
	}
	dueDate, err := time.ParseInLocation("2006-01-02", req.DueDate, s.loc)
	if err != nil {
		return payroll.CycleResponse{}, validator.ValidationErrors{{Field: "due_date", Message: "must be in YYYY-MM-DD format"}}
	}

	var (
		result  payroll.Cycle
		pending []payroll.OutboxEvent
	)
	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		cycle, err := s.cycleRepo.GetByIDForUpdate(txCtx, req.CycleID)
		if err != nil {
			return err
		}
		if cycle.Status != payroll.CycleStatusDraft {
			return &payroll.TransitionError{
				Entity:  "cycle",
				ID:      cycle.ID,
				Action:  "send to review",
				From:    string(cycle.Status),
				Allowed: []string{string(payroll.CycleStatusDraft)},
			}
		}

		slips, err := s.slipRepo.ListByCycle(txCtx, cycle.ID)
		if err != nil {
			return fmt.Errorf("failed to list slips: %w", err)
		}
		if len(slips) == 0 {
			return &payroll.TransitionError{
				Entity: "cycle",
				ID:     cycle.ID,
				Action: "send to review",
				From:   string(cycle.Status),
				Reason: "cycle has no slips",
			}
		}

		if err := s.cycleRepo.UpdateStatus(txCtx, cycle.ID, payroll.CycleStatusUpdate{
			Status:  payroll.CycleStatusWaitingReview,
			DueDate: &dueDate,
		}); err != nil {
			return fmt.Errorf("failed to update cycle status: %w", err)
		}

		events := make([]payroll.OutboxEvent, 0, len(slips))
		for _, slip := range slips {
			event, err := newNotificationEvent(cycle.ID, payroll.NotificationMessage{
				UserIDs: []string{slip.UserID},
				Title:   "Payslip ready for review",
				Message: fmt.Sprintf("Your payslip for %s is ready. Please acknowledge or dispute it by %s.", cycle.PeriodKey, req.DueDate),
				Kind:    payroll.NotificationKindReviewRequested,
				CycleID: cycle.ID,
				SlipID:  slip.ID,
			})
			if err != nil {
				return err
			}
			events = append(events, event)
		}
		if pending, err = s.enqueue(txCtx, events); err != nil {
			return fmt.Errorf("failed to enqueue review notifications: %w", err)
		}

		cycle.Status = payroll.CycleStatusWaitingReview
		cycle.DueDate = &dueDate
		cycle.SlipCount = len(slips)
		result = cycle
		return nil
	})
	if err != nil {
		return payroll.CycleResponse{}, err
	}

	s.deliver(ctx, pending)
	s.logger.Info("payroll cycle sent to review",
		"cycle_id", result.ID,
		"period", result.PeriodKey,
		"due_date", req.DueDate,
		"notified", len(pending),
		"actor_id", actor.UserID,
	)
	return mapToCycleResponse(result), nil
}

// MarkReadyToPay confirms HR is done reconciling. Refused while any slip is DISPUTED.
func (s *PayrollServiceImpl) MarkReadyToPay(ctx context.Context, cycleID string) (payroll.CycleResponse, error) {
	actor, err := s.requirePrivileged(ctx, "mark payroll cycles ready to pay")
	if err != nil {
		return payroll.CycleResponse{}, err
	}

	var result payroll.Cycle
	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		cycle, err := s.cycleRepo.GetByIDForUpdate(txCtx, cycleID)
		if err != nil {
			return err
		}
		if cycle.Status != payroll.CycleStatusWaitingReview {
			return &payroll.TransitionError{
				Entity:  "cycle",
				ID:      cycle.ID,
				Action:  "mark ready to pay",
				From:    string(cycle.Status),
				Allowed: []string{string(payroll.CycleStatusWaitingReview)},
			}
		}

		slips, err := s.slipRepo.ListByCycle(txCtx, cycle.ID)
		if err != nil {
			return fmt.Errorf("failed to list slips: %w", err)
		}
		disputed := 0
		for _, slip := range slips {
			if slip.Status == payroll.SlipStatusDisputed {
				disputed++
			}
		}
		if disputed > 0 {
			return &payroll.TransitionError{
				Entity: "cycle",
				ID:     cycle.ID,
				Action: "mark ready to pay",
				From:   string(cycle.Status),
				Reason: fmt.Sprintf("%d slip(s) still disputed", disputed),
			}
		}

		if err := s.cycleRepo.UpdateStatus(txCtx, cycle.ID, payroll.CycleStatusUpdate{
			Status:  payroll.CycleStatusReadyToPay,
			DueDate: cycle.DueDate,
		}); err != nil {
			return fmt.Errorf("failed to update cycle status: %w", err)
		}

		cycle.Status = payroll.CycleStatusReadyToPay
		cycle.SlipCount = len(slips)
		result = cycle
		return nil
	})
	if err != nil {
		return payroll.CycleResponse{}, err
	}

	s.logger.Info("payroll cycle ready to pay", "cycle_id", result.ID, "period", result.PeriodKey, "actor_id", actor.UserID)
	return mapToCycleResponse(result), nil
}

// visibleCycle loads a cycle the actor may see and reports whether the actor is privileged.
func (s *PayrollServiceImpl) visibleCycle(ctx context.Context, cycleID string) (payroll.Cycle, bool, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return payroll.Cycle{}, false, err
	}
	cycle, err := s.cycleRepo.GetByID(ctx, cycleID)
	if err != nil {
		return payroll.Cycle{}, false, err
	}

	privileged := s.authorizer.IsPrivileged(actor)
	if !privileged && cycle.Status == payroll.CycleStatusDraft {
		return payroll.Cycle{}, false, payroll.ErrCycleNotFound
	}
	return cycle, privileged, nil
}
