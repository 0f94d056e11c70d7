package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type CastStatus string

const (
	CastStatusQueued    CastStatus = "QUEUED"
	CastStatusCompleted CastStatus = "COMPLETED"
	CastStatusFailed    CastStatus = "FAILED"
)

type BudgetPeriod string

const (
	BudgetPeriodDaily   BudgetPeriod = "daily"
	BudgetPeriodMonthly BudgetPeriod = "monthly"
)

// Cast is the audit record of one execution attempt. A row is created in
// QUEUED before the sandbox runs and moves to exactly one terminal status.
// Terminal rows are immutable except for the cost back-fill.
type Cast struct {
	ID        uuid.UUID  `gorm:"primaryKey;type:uuid"`
	TenantID  *string    `gorm:"index"`
	UnitName  string     `gorm:"not null"`
	Payload   datatypes.JSON
	Status    CastStatus `gorm:"index;not null"`
	Result    datatypes.JSON
	ErrorCode *string
	CostCents *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Budget is a tenant's opt-in spend policy. Nil limits mean "no limit".
type Budget struct {
	TenantID       string       `gorm:"primaryKey"`
	Period         BudgetPeriod `gorm:"not null"`
	SoftLimitCents *int64
	HardLimitCents *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UsageRecord aggregates cost-bearing events per tenant and half-open
// window [WindowStart, WindowEnd). Rows for the same key accumulate.
type UsageRecord struct {
	TenantID    string    `gorm:"primaryKey"`
	WindowStart time.Time `gorm:"primaryKey"`
	WindowEnd   time.Time `gorm:"not null"`
	CallCount   int64     `gorm:"not null"`
	CostCents   int64     `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
