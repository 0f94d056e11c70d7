package db

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccumulateUsage upserts the usage row keyed by (tenant_id, window_start),
// adding one call and the given cost. The accumulation happens inside the
// database so concurrent recorders never overwrite each other.
func (db Database) AccumulateUsage(ctx context.Context, tenantID string, windowStart, windowEnd time.Time, costCents int64) error {
	now := time.Now().UTC()
	record := UsageRecord{
		TenantID:    tenantID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		CallCount:   1,
		CostCents:   costCents,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return db.orm.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "window_start"}},
		DoUpdates: clause.Assignments(map[string]any{
			"call_count": gorm.Expr("usage_records.call_count + 1"),
			"cost_cents": gorm.Expr("usage_records.cost_cents + EXCLUDED.cost_cents"),
			"updated_at": now,
		}),
	}).Create(&record).Error
}

// SumUsage totals calls and cost for records whose window lies inside
// [start, end).
func (db Database) SumUsage(ctx context.Context, tenantID string, start, end time.Time) (calls int64, costCents int64, err error) {
	var row struct {
		Calls int64
		Cost  int64
	}
	err = db.orm.WithContext(ctx).Model(&UsageRecord{}).
		Select("COALESCE(SUM(call_count), 0) AS calls, COALESCE(SUM(cost_cents), 0) AS cost").
		Where("tenant_id = ? AND window_start >= ? AND window_end <= ?", tenantID, start, end).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Calls, row.Cost, nil
}
