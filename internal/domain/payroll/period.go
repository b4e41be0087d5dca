package payroll

import (
	"fmt"
	"regexp"
	"time"
)

const PeriodKeyLayout = "2006-01"

var periodKeyRegex = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Period is the half-open window [Start, End) covered by a cycle.
type Period struct {
	Key   string
	Start time.Time
	End   time.Time
}

// IsValidPeriodKey reports whether key has the "YYYY-MM" shape.
func IsValidPeriodKey(key string) bool {
	return periodKeyRegex.MatchString(key)
}

// ParsePeriod resolves a "YYYY-MM" key into the calendar month it names in loc.
func ParsePeriod(key string, loc *time.Location) (Period, error) {
	if !IsValidPeriodKey(key) {
		return Period{}, fmt.Errorf("%w: %q is not in YYYY-MM format", ErrInvalidPeriod, key)
	}
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(PeriodKeyLayout, key, loc)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %v", ErrInvalidPeriod, err)
	}
	return Period{Key: key, Start: start, End: start.AddDate(0, 1, 0)}, nil
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// LastDay returns the final calendar day of the period.
func (p Period) LastDay() time.Time {
	return p.End.AddDate(0, 0, -1)
}
