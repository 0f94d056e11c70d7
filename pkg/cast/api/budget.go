package api

import "time"

type SetBudgetRequest struct {
	Period         string `json:"period" validate:"omitempty,oneof=daily monthly"`
	SoftLimitCents *int64 `json:"soft_limit_cents"`
	HardLimitCents *int64 `json:"hard_limit_cents"`
}

type BudgetResponse struct {
	TenantID       string    `json:"tenant_id"`
	Period         string    `json:"period"`
	SoftLimitCents *int64    `json:"soft_limit_cents"`
	HardLimitCents *int64    `json:"hard_limit_cents"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type BudgetExceededResponse struct {
	Error          string `json:"error"`
	Period         string `json:"period"`
	HardLimitCents int64  `json:"hard_limit_cents"`
	SpentCents     int64  `json:"spent_cents"`
}

type UsageResponse struct {
	Period      string    `json:"period"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Calls       int64     `json:"calls"`
	CostCents   int64     `json:"cost_cents"`
}
