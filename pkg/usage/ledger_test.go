package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindowIsDailyUTC(t *testing.T) {
	start, end := Window(time.Date(2024, 5, 17, 23, 59, 59, 0, time.UTC))
	require.Equal(t, time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC), end)
}

func TestWindowNormalizesZone(t *testing.T) {
	// 01:30 on the 18th in UTC+5 is still the 17th in UTC.
	zone := time.FixedZone("east", 5*60*60)
	start, _ := Window(time.Date(2024, 5, 18, 1, 30, 0, 0, zone))
	require.Equal(t, time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC), start)
}

func TestWindowMonthBoundary(t *testing.T) {
	start, end := Window(time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC))
	require.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), end)
}
