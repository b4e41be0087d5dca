package fixtures

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetDemoEmployees_UniqueIDs(t *testing.T) {
	employees := GetDemoEmployees()

	seen := make(map[string]bool)
	for _, e := range employees {
		assert.False(t, seen[e.ID], "duplicate id %s", e.ID)
		seen[e.ID] = true
		assert.False(t, e.BaseSalary.IsNegative())
	}
	assert.True(t, seen[OwnerID])
	assert.True(t, seen[HRManagerID])
}

func TestGetDemoActivity_CoversEveryMonth(t *testing.T) {
	loc := time.FixedZone("ICT", 7*60*60)

	attendance := GetDemoAttendance(2024, loc)
	duties := GetDemoDuties(2024, loc)

	months := make(map[time.Month]bool)
	for _, r := range attendance {
		assert.Equal(t, 2024, r.Date.Year())
		months[r.Date.Month()] = true
	}
	assert.Len(t, months, 12)
	assert.Len(t, duties, 24)
}
