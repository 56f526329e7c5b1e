package biztime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMonthsUTC(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		n     int
		want  time.Time
	}{
		{"plain", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), 3, time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)},
		{"clamps to february", time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), 1, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
		{"leap year", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), 1, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"crosses year", time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC), 3, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddMonthsUTC(tt.start, tt.n))
		})
	}
}

func TestDaysBetween_UsesBusinessTimezone(t *testing.T) {
	require.NoError(t, Init("America/New_York"))
	t.Cleanup(func() { _ = Init("") })

	// 03:00 UTC on the 2nd is still the 1st in New York.
	a := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)
	b := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(a, b))
}

func TestFromUnix(t *testing.T) {
	assert.Nil(t, FromUnix(0))
	got := FromUnix(1700000000)
	require.NotNil(t, got)
	assert.Equal(t, time.UTC, got.Location())
}
