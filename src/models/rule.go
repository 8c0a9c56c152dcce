package models

import "time"

// Condition operators supported by the evaluator. Anything else fails
// validation at the store boundary.
const (
	OpEq       = "eq"
	OpGt       = "gt"
	OpLt       = "lt"
	OpGte      = "gte"
	OpLte      = "lte"
	OpContains = "contains"
)

// Action types.
const (
	ActionNotify   = "notify"
	ActionTransfer = "transfer"
)

type Condition struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

type Action struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Value  string `json:"value,omitempty"`
}

type Rule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Condition   Condition `json:"condition"`
	Action      Action    `json:"action"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
