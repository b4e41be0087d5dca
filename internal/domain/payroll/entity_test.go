package payroll

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSlip_Recalculate(t *testing.T) {
	s := Slip{
		BaseSalary:                 decimal.NewFromInt(30000),
		OTPay:                      decimal.NewFromInt(1200),
		Bonus:                      decimal.NewFromInt(500),
		Commission:                 decimal.RequireFromString("250.50"),
		Allowance:                  decimal.NewFromInt(1000),
		Tax:                        decimal.NewFromInt(900),
		SocialSecurityContribution: decimal.NewFromInt(750),
		LeaveDeduction:             decimal.NewFromInt(100),
		DisciplinaryDeduction:      decimal.NewFromInt(350),
		AdvancePayment:             decimal.NewFromInt(2000),
	}

	s.Recalculate()

	assert.True(t, decimal.RequireFromString("32950.50").Equal(s.TotalIncome), "got %s", s.TotalIncome)
	assert.True(t, decimal.NewFromInt(4100).Equal(s.TotalDeduction), "got %s", s.TotalDeduction)
	assert.True(t, decimal.RequireFromString("28850.50").Equal(s.NetTotal), "got %s", s.NetTotal)
}

func TestSlip_Recalculate_NegativeNet(t *testing.T) {
	s := Slip{
		BaseSalary:     decimal.NewFromInt(1000),
		AdvancePayment: decimal.NewFromInt(1500),
	}

	s.Recalculate()

	assert.True(t, decimal.NewFromInt(-500).Equal(s.NetTotal))
}
