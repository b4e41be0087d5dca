package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // policy timezones resolve without a system zoneinfo

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// PayrollPolicy is the studio's payroll rule set, loaded from PAYROLL_POLICY_FILE.
type PayrollPolicy struct {
	Version             int                  `yaml:"version"`
	Timezone            string               `yaml:"timezone"`
	LateCutoff          string               `yaml:"late_cutoff"` // HH:MM local time
	PrivilegedRoles     []string             `yaml:"privileged_roles"`
	PrivilegedPositions []string             `yaml:"privileged_positions"`
	DefaultRates        RatePolicy           `yaml:"default_rates"`
	SocialSecurity      SocialSecurityPolicy `yaml:"social_security"`
	WithholdingTaxRate  decimal.Decimal      `yaml:"withholding_tax_rate"`
}

type RatePolicy struct {
	LateRatePerOccurrence       decimal.Decimal `yaml:"late_rate_per_occurrence"`
	AbsentRatePerDay            decimal.Decimal `yaml:"absent_rate_per_day"`
	MissedDutyRatePerOccurrence decimal.Decimal `yaml:"missed_duty_rate_per_occurrence"`
}

type SocialSecurityPolicy struct {
	Rate decimal.Decimal `yaml:"rate"`
	Cap  decimal.Decimal `yaml:"cap"`
}

// DefaultPayrollPolicy is used when no policy file is configured.
func DefaultPayrollPolicy() PayrollPolicy {
	return PayrollPolicy{
		Version:             1,
		Timezone:            "Asia/Bangkok",
		LateCutoff:          "10:00",
		PrivilegedRoles:     []string{"owner", "admin"},
		PrivilegedPositions: []string{"Senior HR", "HR Manager"},
		DefaultRates: RatePolicy{
			LateRatePerOccurrence:       decimal.NewFromInt(50),
			AbsentRatePerDay:            decimal.NewFromInt(300),
			MissedDutyRatePerOccurrence: decimal.NewFromInt(100),
		},
		SocialSecurity: SocialSecurityPolicy{
			Rate: decimal.RequireFromString("0.05"),
			Cap:  decimal.NewFromInt(750),
		},
		WithholdingTaxRate: decimal.RequireFromString("0.03"),
	}
}

// ParsePayrollPolicy decodes a YAML policy document over the defaults, so a file
// only needs to name what it changes.
func ParsePayrollPolicy(data []byte) (PayrollPolicy, error) {
	policy := DefaultPayrollPolicy()
	if len(bytes.TrimSpace(data)) == 0 {
		return policy, nil
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return PayrollPolicy{}, fmt.Errorf("payroll policy: decode: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return PayrollPolicy{}, fmt.Errorf("payroll policy: %w", err)
	}
	return policy, nil
}

// LoadPayrollPolicy reads and parses the policy file at path.
func LoadPayrollPolicy(path string) (PayrollPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PayrollPolicy{}, fmt.Errorf("payroll policy: read %s: %w", path, err)
	}
	policy, err := ParsePayrollPolicy(data)
	if err != nil {
		return PayrollPolicy{}, fmt.Errorf("%s: %w", path, err)
	}
	return policy, nil
}

func (p PayrollPolicy) Validate() error {
	if _, err := p.Location(); err != nil {
		return err
	}
	if _, err := p.LateCutoffOffset(); err != nil {
		return err
	}
	if len(p.PrivilegedRoles) == 0 && len(p.PrivilegedPositions) == 0 {
		return fmt.Errorf("at least one privileged role or position is required")
	}
	for name, v := range map[string]decimal.Decimal{
		"default_rates.late_rate_per_occurrence":        p.DefaultRates.LateRatePerOccurrence,
		"default_rates.absent_rate_per_day":             p.DefaultRates.AbsentRatePerDay,
		"default_rates.missed_duty_rate_per_occurrence": p.DefaultRates.MissedDutyRatePerOccurrence,
		"social_security.rate":                          p.SocialSecurity.Rate,
		"social_security.cap":                           p.SocialSecurity.Cap,
		"withholding_tax_rate":                          p.WithholdingTaxRate,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%s must be non-negative", name)
		}
	}
	if p.SocialSecurity.Rate.GreaterThan(decimal.NewFromInt(1)) || p.WithholdingTaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("rates must be expressed as fractions between 0 and 1")
	}
	return nil
}

// Location resolves the policy timezone.
func (p PayrollPolicy) Location() (*time.Location, error) {
	name := strings.TrimSpace(p.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", p.Timezone, err)
	}
	return loc, nil
}

// LateCutoffOffset returns the cutoff as an offset from local midnight.
func (p PayrollPolicy) LateCutoffOffset() (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(p.LateCutoff))
	if err != nil {
		return 0, fmt.Errorf("invalid late_cutoff %q: expected HH:MM", p.LateCutoff)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
