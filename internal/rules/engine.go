package rules

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

// Engine owns the rule collection. It holds no process-wide state; an
// instance is created per composition root, so independent accounts or
// tests never cross-contaminate.
type Engine struct {
	mu     sync.Mutex
	rules  map[string]*Rule
	order  []string // creation order, keeps evaluation deterministic
	broker broker.Broker
	audit  store.AuditSink
	nowFn  func() time.Time
}

func NewEngine(b broker.Broker, audit store.AuditSink) *Engine {
	if audit == nil {
		audit = store.NoopAudit{}
	}
	return &Engine{
		rules:  make(map[string]*Rule),
		broker: b,
		audit:  audit,
		nowFn:  time.Now,
	}
}

// Create validates params and registers a new active rule. The
// effective threshold and comparison direction are derived once here,
// so evaluation is a plain operator check.
func (e *Engine) Create(params CreateParams) (*Rule, error) {
	rule, err := buildRule(params, e.nowFn())
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.rules[rule.ID] = rule
	e.order = append(e.order, rule.ID)
	e.mu.Unlock()

	e.audit.Record(store.Event{
		EntityKind: store.KindRule,
		EntityID:   rule.ID,
		Symbol:     rule.Symbol,
		Event:      store.EventCreated,
		Details:    map[string]any{"kind": string(rule.Kind), "trigger_value": rule.TriggerValue},
	})
	out := *rule
	return &out, nil
}

// CreateOCO registers both legs of a one-cancels-other pair atomically.
// Either both legs exist afterwards or neither does.
func (e *Engine) CreateOCO(params OCOParams) (*Rule, *Rule, error) {
	side := pricing.NormalizeSide(params.Side)
	sym := symbol.Normalize(params.Symbol)
	switch {
	case sym == "":
		return nil, nil, fmt.Errorf("%w: symbol is required", ErrValidation)
	case side == "":
		return nil, nil, fmt.Errorf("%w: side must be long or short", ErrValidation)
	case params.TakeProfitPrice <= 0 || params.StopLossPrice <= 0:
		return nil, nil, fmt.Errorf("%w: OCO needs positive take-profit and stop-loss prices", ErrValidation)
	case params.Quantity <= 0:
		return nil, nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	// A long exits profitably above and defensively below; shorts mirror.
	tpOp, slOp := OpGTE, OpLTE
	if side == pricing.SideShort {
		tpOp, slOp = OpLTE, OpGTE
	}
	now := e.nowFn()
	groupID := uuid.NewString()
	tp := &Rule{
		ID:           uuid.NewString(),
		Symbol:       sym,
		Kind:         KindOCOLeg,
		Side:         side,
		Operator:     tpOp,
		TriggerValue: params.TakeProfitPrice,
		Quantity:     params.Quantity,
		Status:       StatusActive,
		Enabled:      true,
		OCOGroupID:   groupID,
		CreatedAt:    now,
	}
	sl := &Rule{
		ID:           uuid.NewString(),
		Symbol:       sym,
		Kind:         KindOCOLeg,
		Side:         side,
		Operator:     slOp,
		TriggerValue: params.StopLossPrice,
		Quantity:     params.Quantity,
		Status:       StatusActive,
		Enabled:      true,
		OCOGroupID:   groupID,
		CreatedAt:    now,
	}
	e.mu.Lock()
	e.rules[tp.ID] = tp
	e.rules[sl.ID] = sl
	e.order = append(e.order, tp.ID, sl.ID)
	e.mu.Unlock()

	for _, leg := range []*Rule{tp, sl} {
		e.audit.Record(store.Event{
			EntityKind: store.KindRule,
			EntityID:   leg.ID,
			Symbol:     leg.Symbol,
			Event:      store.EventCreated,
			Details:    map[string]any{"kind": string(KindOCOLeg), "oco_group": groupID, "trigger_value": leg.TriggerValue},
		})
	}
	tpOut, slOut := *tp, *sl
	return &tpOut, &slOut, nil
}

// Cancel transitions an active rule to cancelled; unknown ids are a
// no-op so idempotent retries stay cheap. Cancelling an OCO leg also
// cancels its sibling.
func (e *Engine) Cancel(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rule, ok := e.rules[id]
	if !ok || rule.Status != StatusActive {
		return
	}
	e.cancelLocked(rule)
	if rule.OCOGroupID != "" {
		if sibling := e.siblingLocked(rule); sibling != nil && sibling.Status == StatusActive {
			e.cancelLocked(sibling)
		}
	}
}

// Toggle enables or disables evaluation of a rule without touching its
// lifecycle status. Unknown ids are a no-op.
func (e *Engine) Toggle(id string, enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rule, ok := e.rules[id]
	if !ok || rule.Status != StatusActive {
		return
	}
	if rule.Enabled == enabled {
		return
	}
	rule.Enabled = enabled
	e.audit.Record(store.Event{
		EntityKind: store.KindRule,
		EntityID:   rule.ID,
		Symbol:     rule.Symbol,
		Event:      store.EventToggled,
		Details:    map[string]any{"enabled": enabled},
	})
}

// ListActive returns active rules, optionally filtered by symbol.
func (e *Engine) ListActive(sym string) []Rule {
	filter := ""
	if strings.TrimSpace(sym) != "" {
		filter = symbol.Normalize(sym)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Rule, 0, len(e.order))
	for _, id := range e.order {
		rule := e.rules[id]
		if rule.Status != StatusActive {
			continue
		}
		if filter != "" && rule.Symbol != filter {
			continue
		}
		out = append(out, *rule)
	}
	return out
}

// Evaluate fetches one quote per distinct symbol with active enabled
// rules and checks every rule against it. A quote failure skips that
// symbol's rules for the pass and is reported, not raised. OCO sibling
// cancellation happens inside the same pass, before the trigger is
// appended to the result.
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
		res.Errors = append(res.Errors, sub.Errors...)
	}
	return res
}

// EvaluateSymbol checks all active enabled rules for one symbol against
// currentPrice. Exposed so callers with their own price feed can drive
// the engine directly.
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
		rule := e.rules[id]
		if rule.Symbol != key || rule.Status != StatusActive || !rule.Enabled {
			continue
		}
		res.Evaluated++
		if !ruleHit(rule, currentPrice) {
			continue
		}
		rule.Status = StatusTriggered
		rule.TriggeredAt = now
		trigger := Trigger{Rule: *rule, Price: currentPrice, FiredAt: now}
		// Cancel the sibling leg before the trigger leaves this pass, so
		// an OCO pair can never be observed with both legs live.
		if rule.OCOGroupID != "" {
			if sibling := e.siblingLocked(rule); sibling != nil && sibling.Status == StatusActive {
				e.cancelLocked(sibling)
				trigger.Sibling = sibling.ID
			}
		}
		e.audit.Record(store.Event{
			EntityKind: store.KindRule,
			EntityID:   rule.ID,
			Symbol:     rule.Symbol,
			Event:      store.EventTriggered,
			Details:    map[string]any{"price": currentPrice, "kind": string(rule.Kind)},
		})
		logger.Infof("rule triggered: %s %s %s @ %.8g (threshold %.8g)",
			rule.Symbol, rule.Kind, rule.Side, currentPrice, rule.TriggerValue)
		res.Triggered = append(res.Triggered, trigger)
	}
	return res
}

func (e *Engine) activeSymbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[string]bool)
	for _, rule := range e.rules {
		if rule.Status == StatusActive && rule.Enabled {
			seen[rule.Symbol] = true
		}
	}
	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

func (e *Engine) siblingLocked(rule *Rule) *Rule {
	for _, candidate := range e.rules {
		if candidate.ID != rule.ID && candidate.OCOGroupID == rule.OCOGroupID {
			return candidate
		}
	}
	return nil
}

func (e *Engine) cancelLocked(rule *Rule) {
	rule.Status = StatusCancelled
	e.audit.Record(store.Event{
		EntityKind: store.KindRule,
		EntityID:   rule.ID,
		Symbol:     rule.Symbol,
		Event:      store.EventCancelled,
		Details:    map[string]any{"oco_group": rule.OCOGroupID},
	})
}

// ruleHit applies the rule predicate. Stops fire on adverse crosses,
// take-profits on favorable ones, limit orders when price reaches the
// order's favorable entry, and OCO legs on their stored operator.
// Comparisons are inclusive.
func ruleHit(rule *Rule, price float64) bool {
	switch rule.Kind {
	case KindStopLoss:
		return pricing.BreachedStop(price, rule.TriggerValue, rule.Side)
	case KindTakeProfit:
		return pricing.ReachedTarget(price, rule.TriggerValue, rule.Side)
	case KindLimitOrder:
		// A long entry fills at or below the limit; a short entry at or
		// above it.
		if rule.Side == pricing.SideShort {
			return pricing.GTE(price, rule.TriggerValue)
		}
		return pricing.LTE(price, rule.TriggerValue)
	case KindOCOLeg:
		if rule.Operator == OpLTE {
			return pricing.LTE(price, rule.TriggerValue)
		}
		return pricing.GTE(price, rule.TriggerValue)
	default:
		return false
	}
}

func buildRule(params CreateParams, now time.Time) (*Rule, error) {
	sym := symbol.Normalize(params.Symbol)
	side := pricing.NormalizeSide(params.Side)
	if sym == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if side == "" {
		return nil, fmt.Errorf("%w: side must be long or short", ErrValidation)
	}
	if params.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	switch params.Kind {
	case KindStopLoss, KindTakeProfit, KindLimitOrder:
	case KindOCOLeg:
		return nil, fmt.Errorf("%w: OCO legs are created through CreateOCO", ErrValidation)
	default:
		return nil, fmt.Errorf("%w: unknown rule kind %q", ErrValidation, params.Kind)
	}

	threshold := params.TriggerValue
	if threshold <= 0 {
		if params.TriggerPercent <= 0 || params.EntryPrice <= 0 {
			return nil, fmt.Errorf("%w: %s needs trigger_value or trigger_percent with entry_price", ErrValidation, params.Kind)
		}
		switch params.Kind {
		case KindStopLoss:
			threshold = pricing.AdverseTarget(params.EntryPrice, params.TriggerPercent, side)
		default:
			threshold = pricing.FavorableTarget(params.EntryPrice, params.TriggerPercent, side)
		}
	}

	op := OpLTE
	switch params.Kind {
	case KindStopLoss:
		if side == pricing.SideShort {
			op = OpGTE
		}
	case KindTakeProfit:
		if side == pricing.SideLong {
			op = OpGTE
		}
	case KindLimitOrder:
		if side == pricing.SideShort {
			op = OpGTE
		}
	}

	return &Rule{
		ID:           uuid.NewString(),
		Symbol:       sym,
		Kind:         params.Kind,
		Side:         side,
		Operator:     op,
		TriggerValue: threshold,
		Quantity:     params.Quantity,
		Status:       StatusActive,
		Enabled:      true,
		CreatedAt:    now,
	}, nil
}
