package payroll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	bangkok := time.FixedZone("ICT", 7*60*60)

	period, err := ParsePeriod("2024-02", bangkok)

	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, bangkok), period.Start)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, bangkok), period.End)
	assert.Equal(t, 29, period.LastDay().Day(), "leap year")
}

func TestParsePeriod_December(t *testing.T) {
	period, err := ParsePeriod("2023-12", nil)

	require.NoError(t, err)
	assert.Equal(t, time.UTC, period.Start.Location())
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), period.End)
}

func TestParsePeriod_Invalid(t *testing.T) {
	for _, key := range []string{"", "2024-13", "2024-00", "2024-6", "24-06", "2024/06", "2024-06-01"} {
		t.Run(key, func(t *testing.T) {
			_, err := ParsePeriod(key, time.UTC)
			assert.ErrorIs(t, err, ErrInvalidPeriod)
		})
	}
}

func TestPeriod_Contains(t *testing.T) {
	period, err := ParsePeriod("2024-06", time.UTC)
	require.NoError(t, err)

	assert.True(t, period.Contains(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, period.Contains(time.Date(2024, time.June, 30, 23, 59, 59, 0, time.UTC)))
	assert.False(t, period.Contains(time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)), "end is exclusive")
	assert.False(t, period.Contains(time.Date(2024, time.May, 31, 23, 59, 59, 0, time.UTC)))
}
