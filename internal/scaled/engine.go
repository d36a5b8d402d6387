package scaled

import (
	"context"
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

// Engine owns the scaled-exit plan collection.
type Engine struct {
	mu      sync.Mutex
	plans   map[string]*Plan
	order   []string
	broker  broker.Broker
	audit   store.AuditSink
	presets *Registry
	nowFn   func() time.Time
}

func NewEngine(b broker.Broker, audit store.AuditSink, presets *Registry) *Engine {
	if audit == nil {
		audit = store.NoopAudit{}
	}
	return &Engine{
		plans:   make(map[string]*Plan),
		broker:  b,
		audit:   audit,
		presets: presets,
		nowFn:   time.Now,
	}
}

// Create validates params and registers a plan. When Targets is empty
// the named preset is resolved; failing both is a validation error.
func (e *Engine) Create(params CreateParams) (*Plan, error) {
	sym := symbol.Normalize(params.Symbol)
	side := pricing.NormalizeSide(params.Side)
	if side == "" {
		side = pricing.SideLong
	}
	switch {
	case sym == "":
		return nil, fmt.Errorf("%w: symbol is required", ErrValidation)
	case params.EntryPrice <= 0:
		return nil, fmt.Errorf("%w: entry price must be positive", ErrValidation)
	case params.TotalQuantity <= 0:
		return nil, fmt.Errorf("%w: total quantity must be positive", ErrValidation)
	}

	specs := params.Targets
	if len(specs) == 0 {
		if e.presets == nil {
			return nil, fmt.Errorf("%w: targets are empty and no preset registry is configured", ErrValidation)
		}
		resolved, ok := e.presets.Resolve(params.Preset)
		if !ok {
			return nil, fmt.Errorf("%w: targets are empty and preset %q is unknown", ErrValidation, params.Preset)
		}
		specs = resolved.Targets
		if params.TrailingTP == nil && resolved.TrailingTP != nil {
			leg := *resolved.TrailingTP
			params.TrailingTP = &leg
		}
	}
	targets, err := buildTargets(specs)
	if err != nil {
		return nil, err
	}
	if params.TrailingTP != nil {
		if params.TrailingTP.TrailPercent <= 0 {
			return nil, fmt.Errorf("%w: trailing take-profit needs a positive trail_percent", ErrValidation)
		}
		if params.TrailingTP.ActivationPercent < 0 {
			return nil, fmt.Errorf("%w: trailing take-profit activation cannot be negative", ErrValidation)
		}
	}

	plan := &Plan{
		ID:            uuid.NewString(),
		Symbol:        sym,
		Side:          side,
		EntryPrice:    params.EntryPrice,
		TotalQuantity: params.TotalQuantity,
		Targets:       targets,
		TrailingTP:    params.TrailingTP,
		Status:        StatusActive,
		CreatedAt:     e.nowFn(),
	}
	e.mu.Lock()
	e.plans[plan.ID] = plan
	e.order = append(e.order, plan.ID)
	e.mu.Unlock()

	e.audit.Record(store.Event{
		EntityKind: store.KindScaled,
		EntityID:   plan.ID,
		Symbol:     plan.Symbol,
		Event:      store.EventCreated,
		Details:    map[string]any{"targets": len(targets), "entry": plan.EntryPrice, "quantity": plan.TotalQuantity},
	})
	out := clonePlan(plan)
	return &out, nil
}

// Cancel removes an active plan from evaluation; unknown ids are a
// no-op.
func (e *Engine) Cancel(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	plan, ok := e.plans[id]
	if !ok || plan.Status == StatusCompleted || plan.Status == StatusCancelled {
		return
	}
	plan.Status = StatusCancelled
	e.audit.Record(store.Event{
		EntityKind: store.KindScaled,
		EntityID:   plan.ID,
		Symbol:     plan.Symbol,
		Event:      store.EventCancelled,
	})
}

// ListActive returns plans still being evaluated, optionally by symbol.
func (e *Engine) ListActive(sym string) []Plan {
	filter := ""
	if strings.TrimSpace(sym) != "" {
		filter = symbol.Normalize(sym)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Plan, 0, len(e.order))
	for _, id := range e.order {
		plan := e.plans[id]
		if plan.Status != StatusActive && plan.Status != StatusTrailing {
			continue
		}
		if filter != "" && plan.Symbol != filter {
			continue
		}
		out = append(out, clonePlan(plan))
	}
	return out
}

// Evaluate fetches one quote per planned symbol and advances every live
// plan.
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

// EvaluateSymbol advances all live plans on one symbol. Per plan and
// pass at most one fixed target fires, the first unfired one whose
// threshold is met, even if price gapped through several. Peak
// excursion is updated before any check so the trailing leg sees the
// true peak.
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
		plan := e.plans[id]
		if plan.Symbol != key {
			continue
		}
		if plan.Status != StatusActive && plan.Status != StatusTrailing {
			continue
		}
		res.Evaluated++

		excursion := pricing.FavorableExcursionPct(plan.EntryPrice, currentPrice, plan.Side)
		if pricing.GT(excursion, plan.PeakExcursionPct) {
			plan.PeakExcursionPct = excursion
		}

		if plan.Status == StatusActive {
			if trigger := e.fireNextTargetLocked(plan, currentPrice, excursion, now); trigger != nil {
				res.Triggered = append(res.Triggered, *trigger)
			}
			if allFired(plan) {
				if plan.TrailingTP != nil {
					plan.Status = StatusTrailing
				} else {
					plan.Status = StatusCompleted
					plan.CompletedAt = now
				}
			}
			continue
		}

		// Trailing leg: gate on peak excursion, trigger when price has
		// given back trail_percent from the peak.
		leg := plan.TrailingTP
		if pricing.LT(plan.PeakExcursionPct, leg.ActivationPercent) {
			continue
		}
		drawdown := plan.PeakExcursionPct - excursion
		if pricing.LT(drawdown, leg.TrailPercent) {
			continue
		}
		quantity := plan.Remaining()
		plan.Status = StatusCompleted
		plan.CompletedAt = now
		e.audit.Record(store.Event{
			EntityKind: store.KindScaled,
			EntityID:   plan.ID,
			Symbol:     plan.Symbol,
			Event:      store.EventTriggered,
			Details:    map[string]any{"kind": string(FireTrailing), "price": currentPrice, "quantity": quantity, "peak_pct": plan.PeakExcursionPct},
		})
		logger.Infof("scaled exit trailing leg fired: %s qty=%.8g @ %.8g (peak %.4f%%, now %.4f%%)",
			plan.Symbol, quantity, currentPrice, plan.PeakExcursionPct, excursion)
		res.Triggered = append(res.Triggered, Trigger{
			Plan:     clonePlan(plan),
			Kind:     FireTrailing,
			Quantity: quantity,
			Price:    currentPrice,
			FiredAt:  now,
		})
	}
	return res
}

// fireNextTargetLocked fires the first unfired target whose threshold
// is met, or none.
func (e *Engine) fireNextTargetLocked(plan *Plan, price, excursion float64, now time.Time) *Trigger {
	for i := range plan.Targets {
		target := &plan.Targets[i]
		if target.FiredAt != nil {
			continue
		}
		if pricing.LT(excursion, target.PricePercent) {
			continue
		}
		firedAt := now
		target.FiredAt = &firedAt
		quantity := plan.TotalQuantity * target.QuantityPercent / 100
		e.audit.Record(store.Event{
			EntityKind: store.KindScaled,
			EntityID:   plan.ID,
			Symbol:     plan.Symbol,
			Event:      store.EventTargetFired,
			Details:    map[string]any{"target_id": target.ID, "price": price, "quantity": quantity, "price_percent": target.PricePercent},
		})
		logger.Infof("scaled exit target fired: %s target=%.4f%% qty=%.8g @ %.8g",
			plan.Symbol, target.PricePercent, quantity, price)
		return &Trigger{
			Plan:     clonePlan(plan),
			Kind:     FireTarget,
			TargetID: target.ID,
			Quantity: quantity,
			Price:    price,
			FiredAt:  now,
		}
	}
	return nil
}

func (e *Engine) activeSymbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[string]bool)
	for _, plan := range e.plans {
		if plan.Status == StatusActive || plan.Status == StatusTrailing {
			seen[plan.Symbol] = true
		}
	}
	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

func allFired(plan *Plan) bool {
	for _, target := range plan.Targets {
		if target.FiredAt == nil {
			return false
		}
	}
	return true
}

func buildTargets(specs []TargetSpec) ([]Target, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: at least one target is required", ErrValidation)
	}
	totalQty := 0.0
	targets := make([]Target, 0, len(specs))
	for i, spec := range specs {
		if spec.PricePercent <= 0 {
			return nil, fmt.Errorf("%w: target #%d price_percent must be positive", ErrValidation, i+1)
		}
		if spec.QuantityPercent <= 0 || spec.QuantityPercent > 100 {
			return nil, fmt.Errorf("%w: target #%d quantity_percent must be in (0,100]", ErrValidation, i+1)
		}
		totalQty += spec.QuantityPercent
		targets = append(targets, Target{
			ID:              uuid.NewString(),
			PricePercent:    spec.PricePercent,
			QuantityPercent: spec.QuantityPercent,
		})
	}
	if totalQty > 100+1e-9 {
		return nil, fmt.Errorf("%w: target quantity percents sum to %.4f, above 100", ErrValidation, totalQty)
	}
	return targets, nil
}

func clonePlan(plan *Plan) Plan {
	out := *plan
	out.Targets = append([]Target(nil), plan.Targets...)
	if plan.TrailingTP != nil {
		leg := *plan.TrailingTP
		out.TrailingTP = &leg
	}
	return out
}
