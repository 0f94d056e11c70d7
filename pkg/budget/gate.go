package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/castforge/castforge/pkg/db"
	"go.uber.org/zap"
)

// CheckResult is the gate's admission decision plus the figures a denial
// response needs. Soft-limit fields are informational and never block.
type CheckResult struct {
	Allowed        bool
	Period         db.BudgetPeriod
	HardLimitCents int64
	SpentCents     int64
	SoftLimitCents *int64
}

// Gate is the spend-limit admission check. It runs before any sandboxed
// execution so the host never pays for a unit it cannot bill. Unlike the
// rate limiter, a store outage here fails closed: budget enforcement is a
// financial control.
type Gate struct {
	db     db.Database
	logger *zap.Logger
}

func NewGate(database db.Database, logger *zap.Logger) *Gate {
	return &Gate{
		db:     database,
		logger: logger.Named("budget"),
	}
}

// CheckHardLimit admits unconditionally when the tenant has no budget or no
// hard limit. Otherwise it sums the tenant's spend in the active window and
// denies once spend has reached the limit; equality already blocks the next
// unit of spend.
func (g *Gate) CheckHardLimit(ctx context.Context, tenantID string) (CheckResult, error) {
	budget, err := g.db.GetBudget(ctx, tenantID)
	if err != nil {
		return CheckResult{}, fmt.Errorf("fetch budget: %w", err)
	}
	if budget == nil || budget.HardLimitCents == nil {
		res := CheckResult{Allowed: true}
		if budget != nil {
			res.Period = budget.Period
			res.SoftLimitCents = budget.SoftLimitCents
			if budget.SoftLimitCents != nil {
				start, end := ActiveWindow(budget.Period, time.Now())
				_, spent, err := g.db.SumUsage(ctx, tenantID, start, end)
				if err != nil {
					return CheckResult{}, fmt.Errorf("sum usage: %w", err)
				}
				res.SpentCents = spent
			}
		}
		return res, nil
	}

	hardLimit := *budget.HardLimitCents
	start, end := ActiveWindow(budget.Period, time.Now())

	_, spent, err := g.db.SumUsage(ctx, tenantID, start, end)
	if err != nil {
		return CheckResult{}, fmt.Errorf("sum usage: %w", err)
	}

	res := CheckResult{
		Allowed:        spent < hardLimit,
		Period:         budget.Period,
		HardLimitCents: hardLimit,
		SpentCents:     spent,
		SoftLimitCents: budget.SoftLimitCents,
	}
	if !res.Allowed {
		g.logger.Warn("tenant exceeded hard limit",
			zap.String("tenant_id", tenantID),
			zap.Int64("spent_cents", spent),
			zap.Int64("hard_limit_cents", hardLimit),
			zap.String("period", string(budget.Period)))
	}
	return res, nil
}

// SoftExceeded reports whether the given spend has crossed the soft limit.
func (r CheckResult) SoftExceeded(extraCents int64) bool {
	return r.SoftLimitCents != nil && r.SpentCents+extraCents >= *r.SoftLimitCents
}
