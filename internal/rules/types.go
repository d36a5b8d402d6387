// Package rules implements the stop-loss / take-profit / limit-order /
// OCO rule engine. Rules are evaluated against live quotes and flip
// status on trigger; they are never deleted, only status-transitioned,
// so the audit trail stays complete.
package rules

import (
	"errors"
	"time"
)

// Kind enumerates the rule variants. The evaluator switches over Kind
// exhaustively; adding a variant is a compile-time exercise.
type Kind string

const (
	KindStopLoss   Kind = "stop_loss"
	KindTakeProfit Kind = "take_profit"
	KindLimitOrder Kind = "limit_order"
	KindOCOLeg     Kind = "oco_leg"
)

// Operator is the comparison applied between the current price and the
// rule threshold.
type Operator string

const (
	OpGTE Operator = "gte"
	OpLTE Operator = "lte"
)

// Status is the rule lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusTriggered Status = "triggered"
	StatusCancelled Status = "cancelled"
)

// ErrValidation marks malformed creation input; nothing is persisted
// when it is returned.
var ErrValidation = errors.New("validation failed")

// Rule is one exit/entry condition over a symbol.
type Rule struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Kind         Kind      `json:"kind"`
	Side         string    `json:"side"`
	Operator     Operator  `json:"operator"`
	TriggerValue float64   `json:"trigger_value"`
	Quantity     float64   `json:"quantity"`
	Status       Status    `json:"status"`
	Enabled      bool      `json:"enabled"`
	OCOGroupID   string    `json:"oco_group_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	TriggeredAt  time.Time `json:"triggered_at,omitempty"`
}

// CreateParams describes a single-rule creation request. The threshold
// may be supplied directly (TriggerValue) or derived from EntryPrice
// plus TriggerPercent.
type CreateParams struct {
	Symbol         string
	Kind           Kind
	Side           string
	TriggerValue   float64
	TriggerPercent float64
	EntryPrice     float64
	Quantity       float64
}

// OCOParams describes a one-cancels-other pair: a take-profit leg above
// and a stop-loss leg below (mirrored for shorts). Both legs share the
// same quantity and group id.
type OCOParams struct {
	Symbol          string
	Side            string
	TakeProfitPrice float64
	StopLossPrice   float64
	Quantity        float64
}

// Trigger is one fired rule, the intent handed to the execution layer.
type Trigger struct {
	Rule    Rule
	Price   float64
	FiredAt time.Time
	Sibling string // cancelled OCO sibling id, if any
}

// Result is the outcome of one evaluation pass.
type Result struct {
	Evaluated int
	Triggered []Trigger
	Errors    []string
}
