package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func (db Database) CreateCast(ctx context.Context, cast *Cast) error {
	return db.orm.WithContext(ctx).Create(cast).Error
}

// CompleteCast moves a queued cast to COMPLETED. The status guard makes the
// transition happen at most once.
func (db Database) CompleteCast(ctx context.Context, id uuid.UUID, result datatypes.JSON) error {
	tx := db.orm.WithContext(ctx).Model(&Cast{}).
		Where("id = ? AND status = ?", id, CastStatusQueued).
		Updates(map[string]any{
			"status": CastStatusCompleted,
			"result": result,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return errors.New("cast is not queued")
	}
	return nil
}

// FailCast moves a queued cast to FAILED with the classified error code.
func (db Database) FailCast(ctx context.Context, id uuid.UUID, errorCode string) error {
	tx := db.orm.WithContext(ctx).Model(&Cast{}).
		Where("id = ? AND status = ?", id, CastStatusQueued).
		Updates(map[string]any{
			"status":     CastStatusFailed,
			"error_code": errorCode,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return errors.New("cast is not queued")
	}
	return nil
}

// SetCastCost back-fills the billed cost on a terminal cast row.
func (db Database) SetCastCost(ctx context.Context, id uuid.UUID, costCents int64) error {
	return db.orm.WithContext(ctx).Model(&Cast{}).
		Where("id = ?", id).
		Update("cost_cents", costCents).Error
}

func (db Database) GetCast(ctx context.Context, id uuid.UUID) (*Cast, error) {
	var cast Cast
	err := db.orm.WithContext(ctx).First(&cast, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cast, nil
}

func (db Database) CountCompletedCasts(ctx context.Context, tenantID string, start, end time.Time) (int64, error) {
	var count int64
	err := db.orm.WithContext(ctx).Model(&Cast{}).
		Where("tenant_id = ? AND status = ? AND created_at >= ? AND created_at < ?",
			tenantID, CastStatusCompleted, start, end).
		Count(&count).Error
	return count, err
}
