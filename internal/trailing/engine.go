// Package trailing implements the trailing-stop engine. Each tracked
// instrument carries a high-water-mark (low for shorts) that only ever
// improves; the trail stop is recomputed from it on every pass.
package trailing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"vigil/internal/gateway/broker"
	"vigil/internal/logger"
	"vigil/internal/pkg/pricing"
	"vigil/internal/pkg/symbol"
	"vigil/internal/store"

	"github.com/google/uuid"
)

// ErrValidation marks malformed creation input.
var ErrValidation = errors.New("validation failed")

// Status is the trailing-stop lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusTriggered Status = "triggered"
	StatusCancelled Status = "cancelled"
)

// TrailingStop tracks one instrument. Exactly one of TrailPercent and
// TrailAmount is set.
type TrailingStop struct {
	ID                string    `json:"id"`
	Symbol            string    `json:"symbol"`
	Side              string    `json:"side"`
	EntryPrice        float64   `json:"entry_price"`
	Quantity          float64   `json:"quantity"`
	TrailPercent      float64   `json:"trail_percent,omitempty"`
	TrailAmount       float64   `json:"trail_amount,omitempty"`
	ActivationPercent float64   `json:"activation_percent,omitempty"`
	HighWaterMark     float64   `json:"high_water_mark"`
	LowWaterMark      float64   `json:"low_water_mark"`
	StopPrice         float64   `json:"stop_price"`
	Enabled           bool      `json:"enabled"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	TriggeredAt       time.Time `json:"triggered_at,omitempty"`
}

// Watermark returns the side-relevant watermark.
func (t *TrailingStop) Watermark() float64 {
	if t.Side == pricing.SideShort {
		return t.LowWaterMark
	}
	return t.HighWaterMark
}

// CreateParams describes a trailing-stop creation request.
type CreateParams struct {
	Symbol            string
	Side              string
	EntryPrice        float64
	Quantity          float64
	TrailPercent      float64
	TrailAmount       float64
	ActivationPercent float64
	Enabled           bool
}

// Trigger is one fired trailing stop.
type Trigger struct {
	Stop    TrailingStop
	Price   float64
	FiredAt time.Time
}

// Result is the outcome of one evaluation pass.
type Result struct {
	Evaluated int
	Triggered []Trigger
	Errors    []string
}

// Engine owns the trailing-stop collection.
type Engine struct {
	mu     sync.Mutex
	stops  map[string]*TrailingStop
	order  []string
	broker broker.Broker
	audit  store.AuditSink
	nowFn  func() time.Time
}

func NewEngine(b broker.Broker, audit store.AuditSink) *Engine {
	if audit == nil {
		audit = store.NoopAudit{}
	}
	return &Engine{
		stops:  make(map[string]*TrailingStop),
		broker: b,
		audit:  audit,
		nowFn:  time.Now,
	}
}

// Create validates params and registers a trailing stop. Watermarks
// start at the entry price.
func (e *Engine) Create(params CreateParams) (*TrailingStop, error) {
	sym := symbol.Normalize(params.Symbol)
	side := pricing.NormalizeSide(params.Side)
	switch {
	case sym == "":
		return nil, fmt.Errorf("%w: symbol is required", ErrValidation)
	case side == "":
		return nil, fmt.Errorf("%w: side must be long or short", ErrValidation)
	case params.EntryPrice <= 0:
		return nil, fmt.Errorf("%w: entry price must be positive", ErrValidation)
	case params.Quantity <= 0:
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	hasPct := params.TrailPercent > 0
	hasAmt := params.TrailAmount > 0
	if hasPct == hasAmt {
		return nil, fmt.Errorf("%w: exactly one of trail_percent and trail_amount must be set", ErrValidation)
	}
	if params.ActivationPercent < 0 {
		return nil, fmt.Errorf("%w: activation_percent cannot be negative", ErrValidation)
	}

	ts := &TrailingStop{
		ID:                uuid.NewString(),
		Symbol:            sym,
		Side:              side,
		EntryPrice:        params.EntryPrice,
		Quantity:          params.Quantity,
		TrailPercent:      params.TrailPercent,
		TrailAmount:       params.TrailAmount,
		ActivationPercent: params.ActivationPercent,
		HighWaterMark:     params.EntryPrice,
		LowWaterMark:      params.EntryPrice,
		Enabled:           params.Enabled,
		Status:            StatusActive,
		CreatedAt:         e.nowFn(),
	}
	ts.StopPrice = trailStop(ts)

	e.mu.Lock()
	e.stops[ts.ID] = ts
	e.order = append(e.order, ts.ID)
	e.mu.Unlock()

	e.audit.Record(store.Event{
		EntityKind: store.KindTrailing,
		EntityID:   ts.ID,
		Symbol:     ts.Symbol,
		Event:      store.EventCreated,
		Details:    map[string]any{"entry": ts.EntryPrice, "trail_percent": ts.TrailPercent, "trail_amount": ts.TrailAmount},
	})
	out := *ts
	return &out, nil
}

// Cancel removes an active trailing stop from evaluation; unknown ids
// are a no-op.
func (e *Engine) Cancel(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ts, ok := e.stops[id]
	if !ok || ts.Status != StatusActive {
		return
	}
	ts.Status = StatusCancelled
	e.audit.Record(store.Event{
		EntityKind: store.KindTrailing,
		EntityID:   ts.ID,
		Symbol:     ts.Symbol,
		Event:      store.EventCancelled,
	})
}

// Toggle enables or disables a trailing stop. Disabled stops keep
// updating their watermarks but never trigger.
func (e *Engine) Toggle(id string, enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ts, ok := e.stops[id]
	if !ok || ts.Status != StatusActive || ts.Enabled == enabled {
		return
	}
	ts.Enabled = enabled
	e.audit.Record(store.Event{
		EntityKind: store.KindTrailing,
		EntityID:   ts.ID,
		Symbol:     ts.Symbol,
		Event:      store.EventToggled,
		Details:    map[string]any{"enabled": enabled},
	})
}

// ListActive returns active trailing stops, optionally by symbol.
func (e *Engine) ListActive(sym string) []TrailingStop {
	filter := ""
	if strings.TrimSpace(sym) != "" {
		filter = symbol.Normalize(sym)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TrailingStop, 0, len(e.order))
	for _, id := range e.order {
		ts := e.stops[id]
		if ts.Status != StatusActive {
			continue
		}
		if filter != "" && ts.Symbol != filter {
			continue
		}
		out = append(out, *ts)
	}
	return out
}

// Evaluate fetches one quote per tracked symbol and advances every
// active trailing stop.
func (e *Engine) Evaluate(ctx context.Context) Result {
	var res Result
	for _, sym := range e.activeSymbols() {
		quote, err := e.broker.GetQuote(ctx, sym)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("quote %s: %v", sym, err))
			continue
		}
		sub := e.EvaluateSymbol(sym, quote.Last)
		res.Evaluated += sub.Evaluated
		res.Triggered = append(res.Triggered, sub.Triggered...)
	}
	return res
}

// EvaluateSymbol advances all active trailing stops on one symbol. The
// watermark is updated first, unconditionally, so that once activation
// is reached the trail reflects the true peak; the trigger check runs
// against the updated watermark in the same cycle.
func (e *Engine) EvaluateSymbol(sym string, currentPrice float64) Result {
	var res Result
	if currentPrice <= 0 {
		return res
	}
	key := symbol.Normalize(sym)
	now := e.nowFn()

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range e.order {
		ts := e.stops[id]
		if ts.Symbol != key || ts.Status != StatusActive {
			continue
		}
		res.Evaluated++

		if pricing.BetterWatermark(currentPrice, ts.Watermark(), ts.Side) {
			if ts.Side == pricing.SideShort {
				ts.LowWaterMark = currentPrice
			} else {
				ts.HighWaterMark = currentPrice
			}
		}
		ts.StopPrice = trailStop(ts)

		if !ts.Enabled {
			continue
		}
		if ts.ActivationPercent > 0 {
			excursion := pricing.FavorableExcursionPct(ts.EntryPrice, ts.Watermark(), ts.Side)
			if pricing.LT(excursion, ts.ActivationPercent) {
				continue
			}
		}
		if !pricing.BreachedStop(currentPrice, ts.StopPrice, ts.Side) {
			continue
		}
		ts.Status = StatusTriggered
		ts.TriggeredAt = now
		e.audit.Record(store.Event{
			EntityKind: store.KindTrailing,
			EntityID:   ts.ID,
			Symbol:     ts.Symbol,
			Event:      store.EventTriggered,
			Details:    map[string]any{"price": currentPrice, "stop": ts.StopPrice, "watermark": ts.Watermark()},
		})
		logger.Infof("trailing stop triggered: %s %s @ %.8g (stop %.8g, watermark %.8g)",
			ts.Symbol, ts.Side, currentPrice, ts.StopPrice, ts.Watermark())
		res.Triggered = append(res.Triggered, Trigger{Stop: *ts, Price: currentPrice, FiredAt: now})
	}
	return res
}

func (e *Engine) activeSymbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[string]bool)
	for _, ts := range e.stops {
		if ts.Status == StatusActive {
			seen[ts.Symbol] = true
		}
	}
	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

func trailStop(ts *TrailingStop) float64 {
	if ts.TrailPercent > 0 {
		return pricing.TrailStopFromPercent(ts.Watermark(), ts.TrailPercent, ts.Side)
	}
	return pricing.TrailStopFromAmount(ts.Watermark(), ts.TrailAmount, ts.Side)
}
