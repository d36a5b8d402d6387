package rules

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/gateway/broker"
	"vigil/internal/store"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []store.Event
}

func (r *recordingAudit) Record(ev store.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingAudit) byEvent(name string) []store.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.Event
	for _, ev := range r.events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func TestCreateValidation(t *testing.T) {
	eng := NewEngine(broker.NewSimBroker(), nil)

	cases := []struct {
		name   string
		params CreateParams
	}{
		{"missing symbol", CreateParams{Kind: KindStopLoss, Side: "long", TriggerValue: 100, Quantity: 1}},
		{"bad side", CreateParams{Symbol: "BTC/USDT", Kind: KindStopLoss, Side: "hedge", TriggerValue: 100, Quantity: 1}},
		{"zero quantity", CreateParams{Symbol: "BTC/USDT", Kind: KindStopLoss, Side: "long", TriggerValue: 100}},
		{"unknown kind", CreateParams{Symbol: "BTC/USDT", Kind: "bracket", Side: "long", TriggerValue: 100, Quantity: 1}},
		{"oco via create", CreateParams{Symbol: "BTC/USDT", Kind: KindOCOLeg, Side: "long", TriggerValue: 100, Quantity: 1}},
		{"no threshold", CreateParams{Symbol: "BTC/USDT", Kind: KindStopLoss, Side: "long", Quantity: 1}},
		{"percent without entry", CreateParams{Symbol: "BTC/USDT", Kind: KindStopLoss, Side: "long", TriggerPercent: 5, Quantity: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.Create(tc.params)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestStopLossPercentDerivation(t *testing.T) {
	eng := NewEngine(broker.NewSimBroker(), nil)

	rule, err := eng.Create(CreateParams{
		Symbol:         "AAPL/USD",
		Kind:           KindStopLoss,
		Side:           "long",
		TriggerPercent: 5,
		EntryPrice:     150,
		Quantity:       10,
	})
	require.NoError(t, err)
	assert.InDelta(t, 142.5, rule.TriggerValue, 1e-9)
	assert.Equal(t, OpLTE, rule.Operator)

	res := eng.EvaluateSymbol("AAPL/USD", 148)
	assert.Equal(t, 1, res.Evaluated)
	assert.Empty(t, res.Triggered)

	res = eng.EvaluateSymbol("AAPL/USD", 140)
	require.Len(t, res.Triggered, 1)
	assert.Equal(t, rule.ID, res.Triggered[0].Rule.ID)
	assert.Equal(t, StatusTriggered, res.Triggered[0].Rule.Status)

	// A triggered rule never fires again.
	res = eng.EvaluateSymbol("AAPL/USD", 130)
	assert.Zero(t, res.Evaluated)
	assert.Empty(t, res.Triggered)
}

func TestShortStopLossMirrors(t *testing.T) {
	eng := NewEngine(broker.NewSimBroker(), nil)

	rule, err := eng.Create(CreateParams{
		Symbol:         "BTC/USDT",
		Kind:           KindStopLoss,
		Side:           "short",
		TriggerPercent: 5,
		EntryPrice:     100,
		Quantity:       1,
	})
	require.NoError(t, err)
	assert.InDelta(t, 105, rule.TriggerValue, 1e-9)

	assert.Empty(t, eng.EvaluateSymbol("BTC/USDT", 104).Triggered)
	assert.Len(t, eng.EvaluateSymbol("BTC/USDT", 105).Triggered, 1)
}

func TestTakeProfitInclusiveThreshold(t *testing.T) {
	eng := NewEngine(broker.NewSimBroker(), nil)

	_, err := eng.Create(CreateParams{
		Symbol:       "ETH/USDT",
		Kind:         KindTakeProfit,
		Side:         "long",
		TriggerValue: 2000,
		Quantity:     1,
	})
	require.NoError(t, err)

	assert.Empty(t, eng.EvaluateSymbol("ETH/USDT", 1999.99).Triggered)
	assert.Len(t, eng.EvaluateSymbol("ETH/USDT", 2000).Triggered, 1)
}

func TestLimitOrderFillSides(t *testing.T) {
	eng := NewEngine(broker.NewSimBroker(), nil)

	long, err := eng.Create(CreateParams{
		Symbol: "BTC/USDT", Kind: KindLimitOrder, Side: "long", TriggerValue: 90, Quantity: 1,
	})
	require.NoError(t, err)
	short, err := eng.Create(CreateParams{
		Symbol: "BTC/USDT", Kind: KindLimitOrder, Side: "short", TriggerValue: 110, Quantity: 1,
	})
	require.NoError(t, err)

	res := eng.EvaluateSymbol("BTC/USDT", 100)
	assert.Empty(t, res.Triggered)

	res = eng.EvaluateSymbol("BTC/USDT", 90)
	require.Len(t, res.Triggered, 1)
	assert.Equal(t, long.ID, res.Triggered[0].Rule.ID)

	res = eng.EvaluateSymbol("BTC/USDT", 111)
	require.Len(t, res.Triggered, 1)
	assert.Equal(t, short.ID, res.Triggered[0].Rule.ID)
}

func TestOCOSiblingCancelledInSamePass(t *testing.T) {
	audit := &recordingAudit{}
	eng := NewEngine(broker.NewSimBroker(), audit)

	tp, sl, err := eng.CreateOCO(OCOParams{
		Symbol:          "BTC/USDT",
		Side:            "long",
		TakeProfitPrice: 110,
		StopLossPrice:   90,
		Quantity:        1,
	})
	require.NoError(t, err)
	assert.Equal(t, tp.OCOGroupID, sl.OCOGroupID)
	assert.Len(t, eng.ListActive("BTC/USDT"), 2)

	res := eng.EvaluateSymbol("BTC/USDT", 112)
	require.Len(t, res.Triggered, 1)
	assert.Equal(t, tp.ID, res.Triggered[0].Rule.ID)
	assert.Equal(t, sl.ID, res.Triggered[0].Sibling)

	// Neither leg survives the pass.
	assert.Empty(t, eng.ListActive("BTC/USDT"))
	assert.Empty(t, eng.EvaluateSymbol("BTC/USDT", 80).Triggered)
	assert.Len(t, audit.byEvent(store.EventCancelled), 1)
}

func TestCancelPropagatesToOCOSibling(t *testing.T) {
	eng := NewEngine(broker.NewSimBroker(), nil)

	tp, _, err := eng.CreateOCO(OCOParams{
		Symbol: "BTC/USDT", Side: "long", TakeProfitPrice: 110, StopLossPrice: 90, Quantity: 1,
	})
	require.NoError(t, err)

	eng.Cancel(tp.ID)
	assert.Empty(t, eng.ListActive(""))

	// Unknown id and double cancel are no-ops.
	eng.Cancel(tp.ID)
	eng.Cancel("nope")
}

func TestToggleSuppressesEvaluation(t *testing.T) {
	eng := NewEngine(broker.NewSimBroker(), nil)

	rule, err := eng.Create(CreateParams{
		Symbol: "BTC/USDT", Kind: KindStopLoss, Side: "long", TriggerValue: 90, Quantity: 1,
	})
	require.NoError(t, err)

	eng.Toggle(rule.ID, false)
	assert.Empty(t, eng.EvaluateSymbol("BTC/USDT", 80).Triggered)

	eng.Toggle(rule.ID, true)
	assert.Len(t, eng.EvaluateSymbol("BTC/USDT", 80).Triggered, 1)
}

func TestEvaluateIsolatesQuoteFailures(t *testing.T) {
	sim := broker.NewSimBroker()
	eng := NewEngine(sim, nil)

	_, err := eng.Create(CreateParams{
		Symbol: "BTC/USDT", Kind: KindStopLoss, Side: "long", TriggerValue: 90, Quantity: 1,
	})
	require.NoError(t, err)
	_, err = eng.Create(CreateParams{
		Symbol: "ETH/USDT", Kind: KindStopLoss, Side: "long", TriggerValue: 1800, Quantity: 1,
	})
	require.NoError(t, err)

	sim.SetPrice("BTC/USDT", 85)
	sim.SetQuoteError("ETH/USDT", errors.New("feed down"))

	res := eng.Evaluate(context.Background())
	assert.Len(t, res.Triggered, 1)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "ETH/USDT")
}
