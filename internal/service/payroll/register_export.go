package payroll

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const registerSheet = "Register"

var registerHeaders = []string{
	"Employee", "User ID", "Status",
	"Base Salary", "OT Pay", "Bonus", "Commission", "Allowance", "Total Income",
	"Tax", "Social Security", "Leave", "Disciplinary", "Advance", "Total Deduction",
	"Net Total", "Dispute Reason", "Transfer Proof",
}

// ExportCycleRegister builds the cycle's salary register as an XLSX workbook.
func (s *PayrollServiceImpl) ExportCycleRegister(ctx context.Context, cycleID string) ([]byte, string, error) {
	if _, err := s.requirePrivileged(ctx, "export payroll registers"); err != nil {
		return nil, "", err
	}

	cycle, err := s.cycleRepo.GetByID(ctx, cycleID)
	if err != nil {
		return nil, "", err
	}
	slips, err := s.slipRepo.ListByCycle(ctx, cycleID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list slips: %w", err)
	}

	data, err := buildRegister(slips)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build register: %w", err)
	}
	return data, fmt.Sprintf("payroll_register_%s.xlsx", cycle.PeriodKey), nil
}

func buildRegister(slips []payroll.Slip) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", registerSheet); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	for i, h := range registerHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(registerSheet, cell, h); err != nil {
			return nil, err
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(registerHeaders))
	if err := f.SetCellStyle(registerSheet, "A1", lastCol+"1", bold); err != nil {
		return nil, err
	}

	net := decimal.Zero
	for idx, slip := range slips {
		row := idx + 2
		values := []any{
			slip.EmployeeName, slip.UserID, string(slip.Status),
			money(slip.BaseSalary), money(slip.OTPay), money(slip.Bonus), money(slip.Commission), money(slip.Allowance), money(slip.TotalIncome),
			money(slip.Tax), money(slip.SocialSecurityContribution), money(slip.LeaveDeduction), money(slip.DisciplinaryDeduction), money(slip.AdvancePayment), money(slip.TotalDeduction),
			money(slip.NetTotal), deref(slip.DisputeReason), deref(slip.TransferProofRef),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(registerSheet, cell, &values); err != nil {
			return nil, err
		}
		net = net.Add(slip.NetTotal)
	}

	// Totals row
	totalRow := len(slips) + 2
	netCol, _ := excelize.ColumnNumberToName(16)
	if err := f.SetCellValue(registerSheet, fmt.Sprintf("A%d", totalRow), "TOTAL"); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(registerSheet, fmt.Sprintf("%s%d", netCol, totalRow), money(net)); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(registerSheet, fmt.Sprintf("A%d", totalRow), fmt.Sprintf("%s%d", lastCol, totalRow), bold); err != nil {
		return nil, err
	}

	f.SetColWidth(registerSheet, "A", "A", 28)
	f.SetColWidth(registerSheet, "B", "B", 38)
	f.SetColWidth(registerSheet, "C", "P", 14)
	f.SetColWidth(registerSheet, "Q", "R", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
