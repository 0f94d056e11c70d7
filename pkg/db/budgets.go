package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (db Database) GetBudget(ctx context.Context, tenantID string) (*Budget, error) {
	var budget Budget
	err := db.orm.WithContext(ctx).First(&budget, "tenant_id = ?", tenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &budget, nil
}

// UpsertBudget creates or replaces a tenant's spend policy.
func (db Database) UpsertBudget(ctx context.Context, budget *Budget) error {
	return db.orm.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"period", "soft_limit_cents", "hard_limit_cents", "updated_at",
		}),
	}).Create(budget).Error
}

func (db Database) DeleteBudget(ctx context.Context, tenantID string) error {
	return db.orm.WithContext(ctx).Delete(&Budget{}, "tenant_id = ?", tenantID).Error
}
