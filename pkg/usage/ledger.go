package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/castforge/castforge/pkg/db"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger records cost-bearing events into per-tenant usage windows and
// back-fills the billed cost onto the cast audit row.
type Ledger struct {
	db     db.Database
	logger *zap.Logger
}

func NewLedger(database db.Database, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:     database,
		logger: logger.Named("usage"),
	}
}

// Window returns the daily aggregation window containing now. Daily
// granularity lets both daily and monthly budget windows sum usage rows
// exactly.
func Window(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// Record accumulates one call and its cost into the current window. The
// upsert is idempotent per key: recording twice adds, never overwrites.
func (l *Ledger) Record(ctx context.Context, tenantID string, costCents int64, castID uuid.UUID) error {
	windowStart, windowEnd := Window(time.Now())

	if err := l.db.AccumulateUsage(ctx, tenantID, windowStart, windowEnd, costCents); err != nil {
		return fmt.Errorf("accumulate usage: %w", err)
	}

	if err := l.db.SetCastCost(ctx, castID, costCents); err != nil {
		return fmt.Errorf("set cast cost: %w", err)
	}

	l.logger.Debug("recorded usage",
		zap.String("tenant_id", tenantID),
		zap.Int64("cost_cents", costCents),
		zap.String("cast_id", castID.String()))
	return nil
}
