package payroll

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

// RenderSlipPDF renders a printable payslip for the slip owner or a privileged user.
// It returns the document and a suggested filename.
func (s *PayrollServiceImpl) RenderSlipPDF(ctx context.Context, slipID string) ([]byte, string, error) {
	slip, err := s.readableSlip(ctx, slipID)
	if err != nil {
		return nil, "", err
	}
	cycle, err := s.cycleRepo.GetByID(ctx, slip.CycleID)
	if err != nil {
		return nil, "", err
	}

	data, err := renderPayslip(cycle, slip)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render payslip: %w", err)
	}
	return data, fmt.Sprintf("payslip_%s_%s.pdf", cycle.PeriodKey, slip.UserID), nil
}

func renderPayslip(cycle payroll.Cycle, slip payroll.Slip) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Payslip "+cycle.PeriodKey, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payslip")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	period := cycle.Period()
	pdf.Cell(0, 7, tr(fmt.Sprintf("Employee: %s", slip.EmployeeName)))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Period: %s (%s to %s)", cycle.PeriodKey, formatDate(period.Start), formatDate(period.LastDay())))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Status: %s", slip.Status))
	pdf.Ln(10)

	section := func(title string) {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, title, "B", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
	}
	line := func(label string, amount decimal.Decimal) {
		pdf.CellFormat(120, 7, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(60, 7, amount.StringFixed(2), "", 1, "R", false, 0, "")
	}
	total := func(label string, amount decimal.Decimal) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(120, 8, label, "T", 0, "L", false, 0, "")
		pdf.CellFormat(60, 8, amount.StringFixed(2), "T", 1, "R", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.Ln(4)
	}

	section("Income")
	line("Base salary", slip.BaseSalary)
	line("Overtime", slip.OTPay)
	line("Bonus", slip.Bonus)
	line("Commission", slip.Commission)
	line("Allowance", slip.Allowance)
	total("Total income", slip.TotalIncome)

	section("Deductions")
	line("Withholding tax", slip.Tax)
	line("Social security", slip.SocialSecurityContribution)
	line("Leave", slip.LeaveDeduction)
	line("Disciplinary", slip.DisciplinaryDeduction)
	line("Advance payment", slip.AdvancePayment)
	total("Total deductions", slip.TotalDeduction)

	if len(slip.DeductionSnapshot) > 0 {
		section("Disciplinary details")
		pdf.SetFont("Helvetica", "", 9)
		for _, item := range slip.DeductionSnapshot {
			pdf.CellFormat(25, 6, formatDate(item.Date), "", 0, "L", false, 0, "")
			pdf.CellFormat(30, 6, string(item.Type), "", 0, "L", false, 0, "")
			pdf.CellFormat(100, 6, tr(item.Details), "", 0, "L", false, 0, "")
			pdf.CellFormat(25, 6, item.Amount.StringFixed(2), "", 1, "R", false, 0, "")
		}
		pdf.Ln(4)
	}

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(120, 10, "Net pay", "TB", 0, "L", false, 0, "")
	pdf.CellFormat(60, 10, slip.NetTotal.StringFixed(2), "TB", 1, "R", false, 0, "")

	if slip.DisputeReason != nil {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 10)
		pdf.MultiCell(0, 6, tr("Dispute: "+*slip.DisputeReason), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
