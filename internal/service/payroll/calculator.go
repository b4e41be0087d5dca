package payroll

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

// CalculatorConfig holds the statutory and attendance rules applied to every slip.
type CalculatorConfig struct {
	Location           *time.Location
	LateCutoff         time.Duration // offset from local midnight; check-ins strictly after it are late
	SocialSecurityRate decimal.Decimal
	SocialSecurityCap  decimal.Decimal
	WithholdingTaxRate decimal.Decimal
}

func DefaultCalculatorConfig() CalculatorConfig {
	return CalculatorConfig{
		Location:           time.FixedZone("ICT", 7*60*60),
		LateCutoff:         10 * time.Hour,
		SocialSecurityRate: decimal.RequireFromString("0.05"),
		SocialSecurityCap:  decimal.NewFromInt(750),
		WithholdingTaxRate: decimal.RequireFromString("0.03"),
	}
}

type Calculator struct {
	cfg CalculatorConfig
}

func NewCalculator(cfg CalculatorConfig) *Calculator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Calculator{cfg: cfg}
}

// ComputeSlipDraft builds the itemized slip for one employee. Records belonging to
// other users or falling outside the period are ignored. The result is PENDING and
// carries no id or cycle.
func (c *Calculator) ComputeSlipDraft(
	emp payroll.EmployeeProfile,
	period payroll.Period,
	attendance []payroll.AttendanceRecord,
	duties []payroll.DutyRecord,
	rates payroll.DeductionRates,
) payroll.Slip {
	items := make([]payroll.DeductionItem, 0)

	for _, rec := range attendance {
		if rec.UserID != emp.ID || !period.Contains(rec.Date) {
			continue
		}
		if item, ok := c.classifyAttendance(rec, rates); ok {
			items = append(items, item)
		}
	}

	for _, duty := range duties {
		if duty.AssigneeID != emp.ID || !period.Contains(duty.Date) {
			continue
		}
		switch normalizeStatus(duty.ResolutionStatus) {
		case payroll.DutyResolutionAbandoned, payroll.DutyResolutionAcceptedFault:
			items = append(items, payroll.DeductionItem{
				Date:    duty.Date,
				Type:    payroll.DeductionTypeMissedDuty,
				Amount:  rates.MissedDutyRatePerOccurrence,
				Details: fmt.Sprintf("Duty %q on %s resolved as %s", duty.Title, c.day(duty.Date), normalizeStatus(duty.ResolutionStatus)),
			})
		}
	}

	// Attendance items were appended first, so a stable sort keeps them ahead of duties on the same date
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.Before(items[j].Date)
	})

	disciplinary := decimal.Zero
	for _, item := range items {
		disciplinary = disciplinary.Add(item.Amount)
	}

	slip := payroll.Slip{
		UserID:                     emp.ID,
		EmployeeName:               emp.FullName,
		BaseSalary:                 emp.BaseSalary.Round(2),
		OTPay:                      decimal.Zero,
		Bonus:                      decimal.Zero,
		Commission:                 decimal.Zero,
		Allowance:                  decimal.Zero,
		Tax:                        c.Tax(emp),
		SocialSecurityContribution: c.SocialSecurity(emp),
		LeaveDeduction:             decimal.Zero,
		DisciplinaryDeduction:      disciplinary.Round(2),
		DeductionSnapshot:          items,
		AdvancePayment:             decimal.Zero,
		Status:                     payroll.SlipStatusPending,
	}
	slip.Recalculate()
	return slip
}

// SocialSecurity is min(base * rate, cap) when the employee is enrolled, else zero.
func (c *Calculator) SocialSecurity(emp payroll.EmployeeProfile) decimal.Decimal {
	if !emp.SocialSecurityIncluded || emp.BaseSalary.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(emp.BaseSalary.Mul(c.cfg.SocialSecurityRate), c.cfg.SocialSecurityCap).Round(2)
}

// Tax is the flat withholding for WHT_3 employees, else zero.
func (c *Calculator) Tax(emp payroll.EmployeeProfile) decimal.Decimal {
	if emp.TaxScheme != payroll.TaxSchemeWHT3 || emp.BaseSalary.IsNegative() {
		return decimal.Zero
	}
	return emp.BaseSalary.Mul(c.cfg.WithholdingTaxRate).Round(2)
}

// classifyAttendance yields at most one item per record: absence wins over lateness.
func (c *Calculator) classifyAttendance(rec payroll.AttendanceRecord, rates payroll.DeductionRates) (payroll.DeductionItem, bool) {
	status := normalizeStatus(rec.Status)
	if status == payroll.AttendanceStatusAbsent || status == payroll.AttendanceStatusNoShow {
		return payroll.DeductionItem{
			Date:    rec.Date,
			Type:    payroll.DeductionTypeAbsent,
			Amount:  rates.AbsentRatePerDay,
			Details: fmt.Sprintf("Absent on %s (%s)", c.day(rec.Date), status),
		}, true
	}

	if rec.CheckInTime == nil || !c.IsLate(*rec.CheckInTime) {
		return payroll.DeductionItem{}, false
	}
	local := rec.CheckInTime.In(c.cfg.Location)
	return payroll.DeductionItem{
		Date:    rec.Date,
		Type:    payroll.DeductionTypeLate,
		Amount:  rates.LateRatePerOccurrence,
		Details: fmt.Sprintf("Checked in at %s on %s, after the %s cutoff", local.Format("15:04:05"), c.day(rec.Date), formatOffset(c.cfg.LateCutoff)),
	}, true
}

// IsLate reports whether the local time-of-day of checkIn is strictly after the cutoff.
func (c *Calculator) IsLate(checkIn time.Time) bool {
	local := checkIn.In(c.cfg.Location)
	sinceMidnight := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	return sinceMidnight > c.cfg.LateCutoff
}

func (c *Calculator) day(t time.Time) string {
	return t.In(c.cfg.Location).Format("2006-01-02")
}

func normalizeStatus(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func formatOffset(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
