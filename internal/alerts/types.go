// Package alerts implements the price / P&L / volume-spike alert
// engine. Alerts are one-shot by default; repeating alerts re-arm after
// a cooldown.
package alerts

import (
	"errors"
	"time"
)

// ErrValidation marks malformed creation input.
var ErrValidation = errors.New("validation failed")

// Kind enumerates the alert predicates.
type Kind string

const (
	KindPriceAbove     Kind = "price_above"
	KindPriceBelow     Kind = "price_below"
	KindPriceChangePct Kind = "price_change_pct"
	KindPnLAbove       Kind = "pnl_above"
	KindPnLBelow       Kind = "pnl_below"
	KindPnLPctAbove    Kind = "pnl_pct_above"
	KindPnLPctBelow    Kind = "pnl_pct_below"
	KindVolumeSpike    Kind = "volume_spike"
)

func (k Kind) needsQuote() bool {
	switch k {
	case KindPriceAbove, KindPriceBelow, KindPriceChangePct, KindVolumeSpike:
		return true
	default:
		return false
	}
}

func (k Kind) needsPositions() bool {
	switch k {
	case KindPnLAbove, KindPnLBelow, KindPnLPctAbove, KindPnLPctBelow:
		return true
	default:
		return false
	}
}

// Status is the alert lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusFired     Status = "fired" // terminal, non-repeating alerts only
	StatusCancelled Status = "cancelled"
)

// Alert is one notification condition. A P&L alert without a symbol is
// portfolio-scoped.
type Alert struct {
	ID              string     `json:"id"`
	Symbol          string     `json:"symbol,omitempty"`
	Kind            Kind       `json:"kind"`
	TargetValue     float64    `json:"target_value"`
	BasePrice       *float64   `json:"base_price,omitempty"`
	Repeating       bool       `json:"repeating"`
	CooldownMinutes int        `json:"cooldown_minutes,omitempty"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (a *Alert) expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// coolingDown reports whether a repeating alert is still inside its
// cooldown window.
func (a *Alert) coolingDown(now time.Time) bool {
	if !a.Repeating || a.LastTriggeredAt == nil || a.CooldownMinutes <= 0 {
		return false
	}
	return now.Sub(*a.LastTriggeredAt) < time.Duration(a.CooldownMinutes)*time.Minute
}

// PriceAlertParams creates price-above/below/change-pct alerts.
type PriceAlertParams struct {
	Symbol          string
	Kind            Kind
	TargetValue     float64
	BasePrice       *float64 // change-pct only; nil means "resolve from quote at creation"
	Repeating       bool
	CooldownMinutes int
	ExpiresAt       *time.Time
}

// PnLAlertParams creates P&L alerts. Empty Symbol means portfolio
// scope.
type PnLAlertParams struct {
	Symbol          string
	Kind            Kind
	TargetValue     float64
	Repeating       bool
	CooldownMinutes int
	ExpiresAt       *time.Time
}

// VolumeAlertParams creates volume-spike alerts; TargetValue is the
// current-to-average multiplier.
type VolumeAlertParams struct {
	Symbol          string
	Multiplier      float64
	Repeating       bool
	CooldownMinutes int
	ExpiresAt       *time.Time
}

// Notice is one fired alert.
type Notice struct {
	Alert   Alert
	Value   float64 // observed value that satisfied the predicate
	Price   float64 // current price where applicable
	FiredAt time.Time
}

// Result is the outcome of one evaluation pass.
type Result struct {
	Evaluated int
	Triggered []Notice
	Errors    []string
}
