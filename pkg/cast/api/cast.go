package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type CastRequest struct {
	UnitName string          `json:"unit_name" validate:"required"`
	Payload  json.RawMessage `json:"payload"`
}

type CastResponse struct {
	ID           uuid.UUID       `json:"id"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result"`
	ErrorCode    *string         `json:"error_code"`
	FuelConsumed *uint64         `json:"fuel_consumed,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Category  string `json:"category"`
}
