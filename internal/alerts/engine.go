package alerts

import (
	"context"
	"fmt"
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

// Engine owns the alert collection and the per-symbol volume history.
type Engine struct {
	mu     sync.Mutex
	alerts map[string]*Alert
	order  []string
	broker broker.Broker
	audit  store.AuditSink
	volume *VolumeWindow
	nowFn  func() time.Time
}

func NewEngine(b broker.Broker, audit store.AuditSink, volume *VolumeWindow) *Engine {
	if audit == nil {
		audit = store.NoopAudit{}
	}
	if volume == nil {
		volume = NewVolumeWindow()
	}
	return &Engine{
		alerts: make(map[string]*Alert),
		broker: b,
		audit:  audit,
		volume: volume,
		nowFn:  time.Now,
	}
}

// CreatePriceAlert registers a price-above/below or price-change-pct
// alert. For change-pct without an explicit base price, the current
// quote is captured as the base; if that fetch fails the alert is still
// created with no base and simply never fires.
func (e *Engine) CreatePriceAlert(ctx context.Context, params PriceAlertParams) (*Alert, error) {
	sym := symbol.Normalize(params.Symbol)
	if sym == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	switch params.Kind {
	case KindPriceAbove, KindPriceBelow, KindPriceChangePct:
	default:
		return nil, fmt.Errorf("%w: %q is not a price alert kind", ErrValidation, params.Kind)
	}
	if params.TargetValue <= 0 {
		return nil, fmt.Errorf("%w: target value must be positive", ErrValidation)
	}
	alert := e.newAlert(sym, params.Kind, params.TargetValue, params.Repeating, params.CooldownMinutes, params.ExpiresAt)
	if params.Kind == KindPriceChangePct {
		alert.BasePrice = params.BasePrice
		if alert.BasePrice == nil {
			if quote, err := e.broker.GetQuote(ctx, sym); err == nil && quote.Last > 0 {
				base := quote.Last
				alert.BasePrice = &base
			} else {
				// Defined never-fires state, not an error.
				logger.Warnf("price-change alert %s created without base price; it will not fire", sym)
			}
		}
	}
	e.register(alert)
	return cloneAlert(alert), nil
}

// CreatePnLAlert registers a P&L alert; an empty symbol scopes it to
// the whole portfolio.
func (e *Engine) CreatePnLAlert(params PnLAlertParams) (*Alert, error) {
	switch params.Kind {
	case KindPnLAbove, KindPnLBelow, KindPnLPctAbove, KindPnLPctBelow:
	default:
		return nil, fmt.Errorf("%w: %q is not a P&L alert kind", ErrValidation, params.Kind)
	}
	if params.TargetValue == 0 {
		return nil, fmt.Errorf("%w: target value is required", ErrValidation)
	}
	sym := ""
	if strings.TrimSpace(params.Symbol) != "" {
		sym = symbol.Normalize(params.Symbol)
	}
	alert := e.newAlert(sym, params.Kind, params.TargetValue, params.Repeating, params.CooldownMinutes, params.ExpiresAt)
	e.register(alert)
	return cloneAlert(alert), nil
}

// CreateVolumeSpikeAlert registers a volume-spike alert with the given
// current-to-average multiplier.
func (e *Engine) CreateVolumeSpikeAlert(params VolumeAlertParams) (*Alert, error) {
	sym := symbol.Normalize(params.Symbol)
	if sym == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if params.Multiplier <= 1 {
		return nil, fmt.Errorf("%w: multiplier must be above 1", ErrValidation)
	}
	alert := e.newAlert(sym, KindVolumeSpike, params.Multiplier, params.Repeating, params.CooldownMinutes, params.ExpiresAt)
	e.register(alert)
	return cloneAlert(alert), nil
}

// Cancel transitions an active alert to cancelled; unknown ids are a
// no-op.
func (e *Engine) Cancel(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	alert, ok := e.alerts[id]
	if !ok || alert.Status != StatusActive {
		return
	}
	alert.Status = StatusCancelled
	e.audit.Record(store.Event{
		EntityKind: store.KindAlert,
		EntityID:   alert.ID,
		Symbol:     alert.Symbol,
		Event:      store.EventCancelled,
	})
}

// ListActive returns active, non-expired alerts, optionally by symbol.
// Expired alerts are excluded but not deleted.
func (e *Engine) ListActive(sym string) []Alert {
	filter := ""
	if strings.TrimSpace(sym) != "" {
		filter = symbol.Normalize(sym)
	}
	now := e.nowFn()
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Alert, 0, len(e.order))
	for _, id := range e.order {
		alert := e.alerts[id]
		if alert.Status != StatusActive || alert.expired(now) {
			continue
		}
		if filter != "" && alert.Symbol != filter {
			continue
		}
		out = append(out, *cloneAlert(alert))
	}
	return out
}

// Evaluate runs one alert pass: quotes are fetched once per distinct
// symbol and the position snapshot once for the whole pass. A quote
// failure skips just that symbol's alerts; a snapshot failure is
// recorded once and skips every P&L alert this cycle.
func (e *Engine) Evaluate(ctx context.Context) Result {
	var res Result
	now := e.nowFn()
	eligible := e.snapshotEligible(now)
	if len(eligible) == 0 {
		return res
	}

	quotes := make(map[string]broker.Quote)
	quoteErrs := make(map[string]string)
	for _, sym := range quoteSymbols(eligible) {
		quote, err := e.broker.GetQuote(ctx, sym)
		if err != nil {
			quoteErrs[sym] = err.Error()
			res.Errors = append(res.Errors, fmt.Sprintf("quote %s: %v", sym, err))
			continue
		}
		quotes[sym] = quote
	}

	var positions []broker.Position
	positionsOK := false
	if needsPositions(eligible) {
		snapshot, err := e.broker.GetPositions(ctx)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("positions: %v", err))
		} else {
			positions = snapshot
			positionsOK = true
		}
	}

	// Spike checks compare against history that excludes this pass's
	// sample; observations are appended after all checks below.
	for _, alert := range eligible {
		res.Evaluated++
		var (
			hit   bool
			value float64
			price float64
		)
		switch {
		case alert.Kind.needsQuote():
			quote, ok := quotes[alert.Symbol]
			if !ok {
				if _, failed := quoteErrs[alert.Symbol]; !failed {
					res.Errors = append(res.Errors, fmt.Sprintf("quote %s: unavailable", alert.Symbol))
				}
				continue
			}
			hit, value = e.checkQuoteAlert(alert, quote)
			price = quote.Last
		case alert.Kind.needsPositions():
			if !positionsOK {
				continue
			}
			hit, value = checkPnLAlert(alert, positions)
		}
		if !hit {
			continue
		}
		e.markTriggered(alert, value, now)
		res.Triggered = append(res.Triggered, Notice{Alert: *cloneAlert(alert), Value: value, Price: price, FiredAt: now})
	}

	for sym, quote := range quotes {
		e.volume.Observe(sym, quote.Volume)
	}
	return res
}

func (e *Engine) checkQuoteAlert(alert *Alert, quote broker.Quote) (bool, float64) {
	switch alert.Kind {
	case KindPriceAbove:
		return pricing.GTE(quote.Last, alert.TargetValue), quote.Last
	case KindPriceBelow:
		return pricing.LTE(quote.Last, alert.TargetValue), quote.Last
	case KindPriceChangePct:
		if alert.BasePrice == nil || *alert.BasePrice <= 0 {
			return false, 0
		}
		change := pricing.ChangePct(*alert.BasePrice, quote.Last)
		return pricing.GTE(change, alert.TargetValue), change
	case KindVolumeSpike:
		avg, ok := e.volume.Average(alert.Symbol)
		if !ok || quote.Volume <= 0 {
			return false, 0
		}
		ratio := quote.Volume / avg
		return pricing.GTE(ratio, alert.TargetValue), ratio
	default:
		return false, 0
	}
}

func checkPnLAlert(alert *Alert, positions []broker.Position) (bool, float64) {
	var pl, plPct float64
	if alert.Symbol == "" {
		var costBasis float64
		for _, pos := range positions {
			pl += pos.UnrealizedPL
			costBasis += pos.CostBasis
		}
		if costBasis > 0 {
			plPct = pl / costBasis * 100
		}
	} else {
		found := false
		for _, pos := range positions {
			if symbol.Normalize(pos.Symbol) == alert.Symbol {
				pl = pos.UnrealizedPL
				plPct = pos.UnrealizedPLPercent
				found = true
				break
			}
		}
		if !found {
			return false, 0
		}
	}
	switch alert.Kind {
	case KindPnLAbove:
		return pricing.GTE(pl, alert.TargetValue), pl
	case KindPnLBelow:
		return pricing.LTE(pl, alert.TargetValue), pl
	case KindPnLPctAbove:
		return pricing.GTE(plPct, alert.TargetValue), plPct
	case KindPnLPctBelow:
		return pricing.LTE(plPct, alert.TargetValue), plPct
	default:
		return false, 0
	}
}

func (e *Engine) markTriggered(alert *Alert, value float64, now time.Time) {
	e.mu.Lock()
	if alert.Repeating {
		fired := now
		alert.LastTriggeredAt = &fired
	} else {
		alert.Status = StatusFired
	}
	e.mu.Unlock()
	e.audit.Record(store.Event{
		EntityKind: store.KindAlert,
		EntityID:   alert.ID,
		Symbol:     alert.Symbol,
		Event:      store.EventTriggered,
		Details:    map[string]any{"kind": string(alert.Kind), "value": value, "target": alert.TargetValue},
	})
	logger.Infof("alert triggered: %s %s value=%.8g target=%.8g", alert.Symbol, alert.Kind, value, alert.TargetValue)
}

// snapshotEligible returns pointers to alerts that should be checked
// this pass: active, not expired, not cooling down.
func (e *Engine) snapshotEligible(now time.Time) []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Alert, 0, len(e.order))
	for _, id := range e.order {
		alert := e.alerts[id]
		if alert.Status != StatusActive || alert.expired(now) || alert.coolingDown(now) {
			continue
		}
		out = append(out, alert)
	}
	return out
}

func (e *Engine) newAlert(sym string, kind Kind, target float64, repeating bool, cooldown int, expires *time.Time) *Alert {
	return &Alert{
		ID:              uuid.NewString(),
		Symbol:          sym,
		Kind:            kind,
		TargetValue:     target,
		Repeating:       repeating,
		CooldownMinutes: cooldown,
		ExpiresAt:       expires,
		Status:          StatusActive,
		CreatedAt:       e.nowFn(),
	}
}

func (e *Engine) register(alert *Alert) {
	e.mu.Lock()
	e.alerts[alert.ID] = alert
	e.order = append(e.order, alert.ID)
	e.mu.Unlock()
	e.audit.Record(store.Event{
		EntityKind: store.KindAlert,
		EntityID:   alert.ID,
		Symbol:     alert.Symbol,
		Event:      store.EventCreated,
		Details:    map[string]any{"kind": string(alert.Kind), "target": alert.TargetValue, "repeating": alert.Repeating},
	})
}

func quoteSymbols(eligible []*Alert) []string {
	seen := make(map[string]bool)
	var out []string
	for _, alert := range eligible {
		if !alert.Kind.needsQuote() || alert.Symbol == "" || seen[alert.Symbol] {
			continue
		}
		seen[alert.Symbol] = true
		out = append(out, alert.Symbol)
	}
	return out
}

func needsPositions(eligible []*Alert) bool {
	for _, alert := range eligible {
		if alert.Kind.needsPositions() {
			return true
		}
	}
	return false
}

func cloneAlert(alert *Alert) *Alert {
	out := *alert
	if alert.BasePrice != nil {
		base := *alert.BasePrice
		out.BasePrice = &base
	}
	if alert.LastTriggeredAt != nil {
		t := *alert.LastTriggeredAt
		out.LastTriggeredAt = &t
	}
	if alert.ExpiresAt != nil {
		t := *alert.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}
