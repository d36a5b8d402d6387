// Package scaled implements the scaled-exit engine: ordered partial
// profit targets per plan, each fired at most once, optionally followed
// by a trailing take-profit leg for whatever quantity remains.
package scaled

import (
	"errors"
	"time"
)

// ErrValidation marks malformed creation input.
var ErrValidation = errors.New("validation failed")

// Status is the plan lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusTrailing  Status = "trailing"  // all fixed targets fired, trailing leg live
	StatusCompleted Status = "completed" // fully exited
	StatusCancelled Status = "cancelled"
)

// Target is one partial-exit step. Firing is tracked by the target's
// own identity, never recomputed from price, so a later pass at the
// same price cannot re-fire it.
type Target struct {
	ID              string     `json:"id"`
	PricePercent    float64    `json:"price_percent"`    // favorable excursion from entry, percent
	QuantityPercent float64    `json:"quantity_percent"` // share of total quantity to exit
	FiredAt         *time.Time `json:"fired_at,omitempty"`
}

// TrailingLeg configures the optional trailing take-profit that takes
// over once every fixed target has fired. Its activation threshold is
// measured against peak excursion, not current excursion.
type TrailingLeg struct {
	ActivationPercent float64 `json:"activation_percent" yaml:"activation_percent" mapstructure:"activation_percent"`
	TrailPercent      float64 `json:"trail_percent" yaml:"trail_percent" mapstructure:"trail_percent"`
}

// Plan is one scaled-exit plan over a position.
type Plan struct {
	ID               string       `json:"id"`
	Symbol           string       `json:"symbol"`
	Side             string       `json:"side"`
	EntryPrice       float64      `json:"entry_price"`
	TotalQuantity    float64      `json:"total_quantity"`
	Targets          []Target     `json:"targets"`
	TrailingTP       *TrailingLeg `json:"trailing_take_profit,omitempty"`
	PeakExcursionPct float64      `json:"peak_excursion_pct"`
	Status           Status       `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	CompletedAt      time.Time    `json:"completed_at,omitempty"`
}

// Remaining returns the quantity not yet scheduled for exit by fired
// targets.
func (p *Plan) Remaining() float64 {
	remaining := p.TotalQuantity
	for _, target := range p.Targets {
		if target.FiredAt != nil {
			remaining -= p.TotalQuantity * target.QuantityPercent / 100
		}
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TargetSpec is the creation-time shape of one target.
type TargetSpec struct {
	PricePercent    float64 `json:"price_percent" yaml:"price_percent" mapstructure:"price_percent"`
	QuantityPercent float64 `json:"quantity_percent" yaml:"quantity_percent" mapstructure:"quantity_percent"`
}

// CreateParams describes a plan creation request. Either Targets or
// Preset must resolve to a non-empty target list.
type CreateParams struct {
	Symbol        string
	Side          string
	EntryPrice    float64
	TotalQuantity float64
	Targets       []TargetSpec
	Preset        string
	TrailingTP    *TrailingLeg
}

// FireKind distinguishes partial target fires from the final trailing
// exit.
type FireKind string

const (
	FireTarget   FireKind = "target"
	FireTrailing FireKind = "trailing_take_profit"
)

// Trigger is one fired exit step, the intent handed to the execution
// layer.
type Trigger struct {
	Plan     Plan
	Kind     FireKind
	TargetID string
	Quantity float64
	Price    float64
	FiredAt  time.Time
}

// Result is the outcome of one evaluation pass.
type Result struct {
	Evaluated int
	Triggered []Trigger
	Errors    []string
}
