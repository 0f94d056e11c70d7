package budget

import (
	"testing"
	"time"

	"github.com/castforge/castforge/pkg/db"
	"github.com/stretchr/testify/require"
)

func TestActiveWindowDaily(t *testing.T) {
	now := time.Date(2024, 3, 15, 17, 42, 3, 0, time.UTC)

	start, end := ActiveWindow(db.BudgetPeriodDaily, now)
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), end)
}

func TestActiveWindowMonthly(t *testing.T) {
	now := time.Date(2024, 3, 15, 17, 42, 3, 0, time.UTC)

	start, end := ActiveWindow(db.BudgetPeriodMonthly, now)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestActiveWindowMonthlyYearRollover(t *testing.T) {
	now := time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)

	start, end := ActiveWindow(db.BudgetPeriodMonthly, now)
	require.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestActiveWindowConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	// 02:30 on March 16 in UTC+5 is still March 15 in UTC.
	now := time.Date(2024, 3, 16, 2, 30, 0, 0, loc)

	start, _ := ActiveWindow(db.BudgetPeriodDaily, now)
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), start)
}

func TestActiveWindowUnknownPeriodFallsBackToMonthly(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	start, end := ActiveWindow(db.BudgetPeriod("weekly"), now)
	require.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), end)
}
