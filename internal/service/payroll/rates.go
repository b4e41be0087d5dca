package payroll

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
)

// GetDeductionRates returns the current rates, or the policy defaults until HR saves a version.
func (s *PayrollServiceImpl) GetDeductionRates(ctx context.Context) (payroll.DeductionRatesResponse, error) {
	if _, err := s.requirePrivileged(ctx, "view deduction rates"); err != nil {
		return payroll.DeductionRatesResponse{}, err
	}

	rates, isDefault, err := s.currentRates(ctx)
	if err != nil {
		return payroll.DeductionRatesResponse{}, fmt.Errorf("failed to load deduction rates: %w", err)
	}
	return mapToRatesResponse(rates, isDefault), nil
}

// UpdateDeductionRates saves a new rate version. Existing cycles keep the snapshot they were generated with.
func (s *PayrollServiceImpl) UpdateDeductionRates(ctx context.Context, req payroll.UpdateDeductionRatesRequest) (payroll.DeductionRatesResponse, error) {
	actor, err := s.requirePrivileged(ctx, "update deduction rates")
	if err != nil {
		return payroll.DeductionRatesResponse{}, err
	}
	if err := req.Validate(); err != nil {
		return payroll.DeductionRatesResponse{}, err
	}

	current, _, err := s.currentRates(ctx)
	if err != nil {
		return payroll.DeductionRatesResponse{}, fmt.Errorf("failed to load deduction rates: %w", err)
	}

	next := current
	if req.LateRatePerOccurrence != nil {
		next.LateRatePerOccurrence = req.LateRatePerOccurrence.Round(2)
	}
	if req.AbsentRatePerDay != nil {
		next.AbsentRatePerDay = req.AbsentRatePerDay.Round(2)
	}
	if req.MissedDutyRatePerOccurrence != nil {
		next.MissedDutyRatePerOccurrence = req.MissedDutyRatePerOccurrence.Round(2)
	}
	next.UpdatedBy = &actor.UserID

	saved, err := s.rateRepo.Save(ctx, next)
	if err != nil {
		return payroll.DeductionRatesResponse{}, fmt.Errorf("failed to save deduction rates: %w", err)
	}

	s.logger.Info("deduction rates updated",
		"version", saved.Version,
		"late", saved.LateRatePerOccurrence.String(),
		"absent", saved.AbsentRatePerDay.String(),
		"missed_duty", saved.MissedDutyRatePerOccurrence.String(),
		"actor_id", actor.UserID,
	)
	return mapToRatesResponse(saved, false), nil
}

func mapToRatesResponse(r payroll.DeductionRates, isDefault bool) payroll.DeductionRatesResponse {
	return payroll.DeductionRatesResponse{
		Version:                     r.Version,
		LateRatePerOccurrence:       r.LateRatePerOccurrence,
		AbsentRatePerDay:            r.AbsentRatePerDay,
		MissedDutyRatePerOccurrence: r.MissedDutyRatePerOccurrence,
		UpdatedAt:                   formatTimePtr(r.UpdatedAt),
		IsDefault:                   isDefault,
	}
}
