package budget

import (
	"time"

	"github.com/castforge/castforge/pkg/db"
)

// ActiveWindow computes the half-open [start, end) window the given period
// covers at instant now, in UTC. An unknown period falls back to monthly.
func ActiveWindow(period db.BudgetPeriod, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	switch period {
	case db.BudgetPeriodDaily:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	default:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
}
