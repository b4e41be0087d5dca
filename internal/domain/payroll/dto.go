package payroll

import (
	"io"
	"sort"
	"strings"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// ========== CYCLE DTOs ==========

type GenerateCycleRequest struct {
	PeriodKey   string   `json:"period_key"`
	EmployeeIDs []string `json:"employee_ids,omitempty"` // Empty = all active employees
}

func (r *GenerateCycleRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.PeriodKey) {
		errs = append(errs, validator.ValidationError{Field: "period_key", Message: "is required"})
	} else if !IsValidPeriodKey(r.PeriodKey) {
		errs = append(errs, validator.ValidationError{Field: "period_key", Message: "must be in YYYY-MM format"})
	}
	for _, id := range r.EmployeeIDs {
		if validator.IsEmpty(id) {
			errs = append(errs, validator.ValidationError{Field: "employee_ids", Message: "must not contain empty ids"})
			break
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type SendToReviewRequest struct {
	CycleID string `json:"-"`
	DueDate string `json:"due_date"` // YYYY-MM-DD
}

func (r *SendToReviewRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.DueDate) {
		errs = append(errs, validator.ValidationError{Field: "due_date", Message: "is required"})
	} else if _, ok := validator.IsValidDate(r.DueDate); !ok {
		errs = append(errs, validator.ValidationError{Field: "due_date", Message: "must be in YYYY-MM-DD format"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type CycleFilter struct {
	Status    *string `json:"status,omitempty"`
	PeriodKey *string `json:"period_key,omitempty"`
	Page      int     `json:"page"`
	Limit     int     `json:"limit"`

	// Set by the service for callers without elevated privilege
	ExcludeDraft bool `json:"-"`
}

func (f *CycleFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
}

func (f *CycleFilter) Validate() error {
	var errs validator.ValidationErrors

	if f.Status != nil && !validator.IsInSlice(*f.Status, []string{
		string(CycleStatusDraft), string(CycleStatusWaitingReview), string(CycleStatusReadyToPay), string(CycleStatusPaid),
	}) {
		errs = append(errs, validator.ValidationError{Field: "status", Message: "must be one of DRAFT, WAITING_REVIEW, READY_TO_PAY, PAID"})
	}
	if f.PeriodKey != nil && !IsValidPeriodKey(*f.PeriodKey) {
		errs = append(errs, validator.ValidationError{Field: "period_key", Message: "must be in YYYY-MM format"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type CycleResponse struct {
	ID           string           `json:"id"`
	PeriodKey    string           `json:"period_key"`
	PeriodStart  string           `json:"period_start"`
	PeriodEnd    string           `json:"period_end"`
	Status       string           `json:"status"`
	DueDate      *string          `json:"due_date,omitempty"`
	TotalPayout  *decimal.Decimal `json:"total_payout,omitempty"`
	RateSnapshot DeductionRates   `json:"rate_snapshot"`
	SlipCount    int              `json:"slip_count"`
	CreatedBy    string           `json:"created_by"`
	FinalizedBy  *string          `json:"finalized_by,omitempty"`
	PaidAt       *string          `json:"paid_at,omitempty"`
	CreatedAt    string           `json:"created_at"`
}

type ListCycleResponse struct {
	Data       []CycleResponse `json:"data"`
	TotalCount int64           `json:"total_count"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
}

type CycleSummaryResponse struct {
	CycleID           string           `json:"cycle_id"`
	PeriodKey         string           `json:"period_key"`
	Status            string           `json:"status"`
	TotalSlips        int              `json:"total_slips"`
	PendingCount      int              `json:"pending_count"`
	AcknowledgedCount int              `json:"acknowledged_count"`
	DisputedCount     int              `json:"disputed_count"`
	PaidCount         int              `json:"paid_count"`
	TotalIncome       decimal.Decimal  `json:"total_income"`
	TotalDeduction    decimal.Decimal  `json:"total_deduction"`
	TotalDisciplinary decimal.Decimal  `json:"total_disciplinary"`
	TotalNet          decimal.Decimal  `json:"total_net"`
	TotalPayout       *decimal.Decimal `json:"total_payout,omitempty"`
}

// ========== SLIP DTOs ==========

// Employee response actions
const (
	SlipActionAcknowledge = "ACKNOWLEDGE"
	SlipActionDispute     = "DISPUTE"
)

type RespondSlipRequest struct {
	SlipID          string  `json:"-"`
	Action          string  `json:"action"`
	Reason          *string `json:"reason,omitempty"`
	ExpectedVersion *int    `json:"expected_version,omitempty"`
}

func (r *RespondSlipRequest) Validate() error {
	var errs validator.ValidationErrors

	switch r.Action {
	case SlipActionAcknowledge:
	case SlipActionDispute:
		if r.Reason == nil || validator.IsEmpty(*r.Reason) {
			errs = append(errs, validator.ValidationError{Field: "reason", Message: "is required when disputing a slip"})
		}
	default:
		errs = append(errs, validator.ValidationError{Field: "action", Message: "must be ACKNOWLEDGE or DISPUTE"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SlipPatch is the typed set of fields HR may override on a slip.
// Totals are not part of the patch; they are recomputed after merging.
type SlipPatch struct {
	BaseSalary                 *decimal.Decimal `json:"base_salary,omitempty"`
	OTPay                      *decimal.Decimal `json:"ot_pay,omitempty"`
	Bonus                      *decimal.Decimal `json:"bonus,omitempty"`
	Commission                 *decimal.Decimal `json:"commission,omitempty"`
	Allowance                  *decimal.Decimal `json:"allowance,omitempty"`
	Tax                        *decimal.Decimal `json:"tax,omitempty"`
	SocialSecurityContribution *decimal.Decimal `json:"social_security_contribution,omitempty"`
	LeaveDeduction             *decimal.Decimal `json:"leave_deduction,omitempty"`
	DisciplinaryDeduction      *decimal.Decimal `json:"disciplinary_deduction,omitempty"`
	AdvancePayment             *decimal.Decimal `json:"advance_payment,omitempty"`
	Status                     *string          `json:"status,omitempty"`
	DisputeReason              *string          `json:"dispute_reason,omitempty"`
	TransferProofRef           *string          `json:"transfer_proof_ref,omitempty"`
}

func (p SlipPatch) amounts() map[string]*decimal.Decimal {
	return map[string]*decimal.Decimal{
		"base_salary":                  p.BaseSalary,
		"ot_pay":                       p.OTPay,
		"bonus":                        p.Bonus,
		"commission":                   p.Commission,
		"allowance":                    p.Allowance,
		"tax":                          p.Tax,
		"social_security_contribution": p.SocialSecurityContribution,
		"leave_deduction":              p.LeaveDeduction,
		"disciplinary_deduction":       p.DisciplinaryDeduction,
		"advance_payment":              p.AdvancePayment,
	}
}

// AmountFields lists the money fields the patch sets, in sorted order.
func (p SlipPatch) AmountFields() []string {
	var fields []string
	for field, v := range p.amounts() {
		if v != nil {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)
	return fields
}

// IsEmpty reports whether the patch changes nothing.
func (p SlipPatch) IsEmpty() bool {
	return len(p.AmountFields()) == 0 && p.Status == nil && p.DisputeReason == nil && p.TransferProofRef == nil
}

func (p SlipPatch) Validate() validator.ValidationErrors {
	var errs validator.ValidationErrors

	for field, v := range p.amounts() {
		if !validator.IsNonNegativeAmount(v) {
			errs = append(errs, validator.ValidationError{Field: field, Message: "must be non-negative"})
		}
	}
	if p.Status != nil {
		if *p.Status == string(SlipStatusPaid) {
			errs = append(errs, validator.ValidationError{Field: "status", Message: "PAID is set only by cycle finalization"})
		} else if !validator.IsInSlice(*p.Status, []string{
			string(SlipStatusPending), string(SlipStatusAcknowledged), string(SlipStatusDisputed),
		}) {
			errs = append(errs, validator.ValidationError{Field: "status", Message: "must be one of PENDING, ACKNOWLEDGED, DISPUTED"})
		}
	}
	disputing := p.Status != nil && *p.Status == string(SlipStatusDisputed)
	if disputing && (p.DisputeReason == nil || validator.IsEmpty(*p.DisputeReason)) {
		errs = append(errs, validator.ValidationError{Field: "dispute_reason", Message: "is required when setting status DISPUTED"})
	}
	if !disputing && p.DisputeReason != nil {
		errs = append(errs, validator.ValidationError{Field: "dispute_reason", Message: "can only be set together with status DISPUTED"})
	}
	if p.TransferProofRef != nil && validator.IsEmpty(*p.TransferProofRef) {
		errs = append(errs, validator.ValidationError{Field: "transfer_proof_ref", Message: "must not be blank"})
	}
	return errs
}

// Apply merges the patch into s and recomputes the derived totals.
// now stamps AcknowledgedAt when the patch acknowledges the slip.
func (p SlipPatch) Apply(s *Slip, now time.Time) {
	set := func(dst *decimal.Decimal, v *decimal.Decimal) {
		if v != nil {
			*dst = v.Round(2)
		}
	}
	set(&s.BaseSalary, p.BaseSalary)
	set(&s.OTPay, p.OTPay)
	set(&s.Bonus, p.Bonus)
	set(&s.Commission, p.Commission)
	set(&s.Allowance, p.Allowance)
	set(&s.Tax, p.Tax)
	set(&s.SocialSecurityContribution, p.SocialSecurityContribution)
	set(&s.LeaveDeduction, p.LeaveDeduction)
	set(&s.DisciplinaryDeduction, p.DisciplinaryDeduction)
	set(&s.AdvancePayment, p.AdvancePayment)

	if p.TransferProofRef != nil {
		ref := strings.TrimSpace(*p.TransferProofRef)
		s.TransferProofRef = &ref
	}
	if p.Status != nil {
		status := SlipStatus(*p.Status)
		switch status {
		case SlipStatusPending:
			s.DisputeReason = nil
			s.AcknowledgedAt = nil
		case SlipStatusAcknowledged:
			s.DisputeReason = nil
			if s.Status != SlipStatusAcknowledged || s.AcknowledgedAt == nil {
				s.AcknowledgedAt = &now
			}
		case SlipStatusDisputed:
			if p.DisputeReason != nil {
				reason := strings.TrimSpace(*p.DisputeReason)
				s.DisputeReason = &reason
			}
			s.AcknowledgedAt = nil
		}
		s.Status = status
	}

	s.Recalculate()
}

// ProofUpload is a transfer-proof file attached to an administrative edit.
type ProofUpload struct {
	Filename string
	Content  io.Reader
}

type EditSlipRequest struct {
	SlipID string `json:"-"`
	SlipPatch
	ExpectedVersion *int         `json:"expected_version,omitempty"`
	Proof           *ProofUpload `json:"-"`
}

func (r *EditSlipRequest) Validate() error {
	errs := r.SlipPatch.Validate()

	if r.Proof != nil && r.SlipPatch.TransferProofRef != nil {
		errs = append(errs, validator.ValidationError{Field: "transfer_proof_ref", Message: "cannot be combined with an uploaded proof file"})
	}
	if r.Proof == nil && r.SlipPatch.IsEmpty() {
		errs = append(errs, validator.ValidationError{Field: "body", Message: "at least one field must be provided"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type SlipResponse struct {
	ID                         string          `json:"id"`
	CycleID                    string          `json:"cycle_id"`
	UserID                     string          `json:"user_id"`
	EmployeeName               string          `json:"employee_name"`
	BaseSalary                 decimal.Decimal `json:"base_salary"`
	OTPay                      decimal.Decimal `json:"ot_pay"`
	Bonus                      decimal.Decimal `json:"bonus"`
	Commission                 decimal.Decimal `json:"commission"`
	Allowance                  decimal.Decimal `json:"allowance"`
	TotalIncome                decimal.Decimal `json:"total_income"`
	Tax                        decimal.Decimal `json:"tax"`
	SocialSecurityContribution decimal.Decimal `json:"social_security_contribution"`
	LeaveDeduction             decimal.Decimal `json:"leave_deduction"`
	DisciplinaryDeduction      decimal.Decimal `json:"disciplinary_deduction"`
	DeductionSnapshot          []DeductionItem `json:"deduction_snapshot"`
	AdvancePayment             decimal.Decimal `json:"advance_payment"`
	TotalDeduction             decimal.Decimal `json:"total_deduction"`
	NetTotal                   decimal.Decimal `json:"net_total"`
	Status                     string          `json:"status"`
	DisputeReason              *string         `json:"dispute_reason,omitempty"`
	TransferProofRef           *string         `json:"transfer_proof_ref,omitempty"`
	TransferProofURL           *string         `json:"transfer_proof_url,omitempty"`
	AcknowledgedAt             *string         `json:"acknowledged_at,omitempty"`
	PaidAt                     *string         `json:"paid_at,omitempty"`
	Version                    int             `json:"version"`
}

// ========== DEDUCTION RATE DTOs ==========

type DeductionRatesResponse struct {
	Version                     int             `json:"version"`
	LateRatePerOccurrence       decimal.Decimal `json:"late_rate_per_occurrence"`
	AbsentRatePerDay            decimal.Decimal `json:"absent_rate_per_day"`
	MissedDutyRatePerOccurrence decimal.Decimal `json:"missed_duty_rate_per_occurrence"`
	UpdatedAt                   *string         `json:"updated_at,omitempty"`
	IsDefault                   bool            `json:"is_default"`
}

type UpdateDeductionRatesRequest struct {
	LateRatePerOccurrence       *decimal.Decimal `json:"late_rate_per_occurrence,omitempty"`
	AbsentRatePerDay            *decimal.Decimal `json:"absent_rate_per_day,omitempty"`
	MissedDutyRatePerOccurrence *decimal.Decimal `json:"missed_duty_rate_per_occurrence,omitempty"`
}

func (r *UpdateDeductionRatesRequest) Validate() error {
	var errs validator.ValidationErrors

	if !validator.IsNonNegativeAmount(r.LateRatePerOccurrence) {
		errs = append(errs, validator.ValidationError{Field: "late_rate_per_occurrence", Message: "must be non-negative"})
	}
	if !validator.IsNonNegativeAmount(r.AbsentRatePerDay) {
		errs = append(errs, validator.ValidationError{Field: "absent_rate_per_day", Message: "must be non-negative"})
	}
	if !validator.IsNonNegativeAmount(r.MissedDutyRatePerOccurrence) {
		errs = append(errs, validator.ValidationError{Field: "missed_duty_rate_per_occurrence", Message: "must be non-negative"})
	}
	if r.LateRatePerOccurrence == nil && r.AbsentRatePerDay == nil && r.MissedDutyRatePerOccurrence == nil {
		errs = append(errs, validator.ValidationError{Field: "body", Message: "at least one rate must be provided"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
