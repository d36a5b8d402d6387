package scaled

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/gateway/broker"
)

func threeTierParams() CreateParams {
	return CreateParams{
		Symbol:        "BTC/USDT",
		Side:          "long",
		EntryPrice:    100,
		TotalQuantity: 10,
		Targets: []TargetSpec{
			{PricePercent: 2, QuantityPercent: 30},
			{PricePercent: 4, QuantityPercent: 30},
			{PricePercent: 6, QuantityPercent: 40},
		},
	}
}

func TestCreateValidation(t *testing.T) {
	eng := NewEngine(broker.NewSimBroker(), nil, NewRegistry())

	cases := []struct {
		name   string
		mutate func(*CreateParams)
	}{
		{"missing symbol", func(p *CreateParams) { p.Symbol = "" }},
		{"zero entry", func(p *CreateParams) { p.EntryPrice = 0 }},
		{"zero quantity", func(p *CreateParams) { p.TotalQuantity = 0 }},
		{"zero price percent", func(p *CreateParams) { p.Targets[0].PricePercent = 0 }},
		{"quantity above 100", func(p *CreateParams) { p.Targets[0].QuantityPercent = 101 }},
		{"sum above 100", func(p *CreateParams) { p.Targets[2].QuantityPercent = 50 }},
		{"bad trailing leg", func(p *CreateParams) { p.TrailingTP = &TrailingLeg{TrailPercent: 0} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := threeTierParams()
			tc.mutate(&params)
			_, err := eng.Create(params)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestTargetsFireInOrderOncePerPass(t *testing.T) {
	eng := NewEngine(broker.NewSimBroker(), nil, NewRegistry())
	plan, err := eng.Create(threeTierParams())
	require.NoError(t, err)

	// Price gaps straight through every target; only the first fires
	// this pass.
	res := eng.EvaluateSymbol("BTC/USDT", 110)
	require.Len(t, res.Triggered, 1)
	first := res.Triggered[0]
	assert.Equal(t, FireTarget, first.Kind)
	assert.Equal(t, plan.Targets[0].ID, first.TargetID)
	assert.InDelta(t, 3, first.Quantity, 1e-9)

	// The next passes drain the remaining targets one at a time.
	res = eng.EvaluateSymbol("BTC/USDT", 110)
	require.Len(t, res.Triggered, 1)
	assert.Equal(t, plan.Targets[1].ID, res.Triggered[0].TargetID)

	res = eng.EvaluateSymbol("BTC/USDT", 110)
	require.Len(t, res.Triggered, 1)
	assert.Equal(t, plan.Targets[2].ID, res.Triggered[0].TargetID)
	assert.InDelta(t, 4, res.Triggered[0].Quantity, 1e-9)

	// All fired, no trailing leg: the plan completes.
	assert.Empty(t, eng.ListActive(""))
	assert.Empty(t, eng.EvaluateSymbol("BTC/USDT", 120).Triggered)
}

func TestFiredTargetNeverRefires(t *testing.T) {
	eng := NewEngine(broker.NewSimBroker(), nil, NewRegistry())
	plan, err := eng.Create(threeTierParams())
	require.NoError(t, err)

	res := eng.EvaluateSymbol("BTC/USDT", 102.5)
	require.Len(t, res.Triggered, 1)
	assert.Equal(t, plan.Targets[0].ID, res.Triggered[0].TargetID)

	// Price oscillates back through target one; it stays fired.
	assert.Empty(t, eng.EvaluateSymbol("BTC/USDT", 99).Triggered)
	assert.Empty(t, eng.EvaluateSymbol("BTC/USDT", 102.5).Triggered)

	res = eng.EvaluateSymbol("BTC/USDT", 104.5)
	require.Len(t, res.Triggered, 1)
	assert.Equal(t, plan.Targets[1].ID, res.Triggered[0].TargetID)
}

func TestTrailingLegFiresRemainder(t *testing.T) {
	eng := NewEngine(broker.NewSimBroker(), nil, NewRegistry())
	params := threeTierParams()
	params.Targets = []TargetSpec{{PricePercent: 2, QuantityPercent: 40}}
	params.TrailingTP = &TrailingLeg{ActivationPercent: 5, TrailPercent: 2}
	_, err := eng.Create(params)
	require.NoError(t, err)

	// Target fires, plan moves to the trailing phase.
	require.Len(t, eng.EvaluateSymbol("BTC/USDT", 103).Triggered, 1)
	active := eng.ListActive("")
	require.Len(t, active, 1)
	assert.Equal(t, StatusTrailing, active[0].Status)

	// Below activation the give-back from the 3% peak does not count.
	assert.Empty(t, eng.EvaluateSymbol("BTC/USDT", 100).Triggered)

	// Run the peak to 8%, then give back 2%: the leg fires the rest.
	assert.Empty(t, eng.EvaluateSymbol("BTC/USDT", 108).Triggered)
	res := eng.EvaluateSymbol("BTC/USDT", 106)
	require.Len(t, res.Triggered, 1)
	assert.Equal(t, FireTrailing, res.Triggered[0].Kind)
	assert.InDelta(t, 6, res.Triggered[0].Quantity, 1e-9)
	assert.Equal(t, StatusCompleted, res.Triggered[0].Plan.Status)
	assert.Empty(t, eng.ListActive(""))
}

func TestPresetResolution(t *testing.T) {
	eng := NewEngine(broker.NewSimBroker(), nil, NewRegistry())

	plan, err := eng.Create(CreateParams{
		Symbol:        "BTC/USDT",
		EntryPrice:    100,
		TotalQuantity: 10,
		Preset:        "conservative",
	})
	require.NoError(t, err)
	require.Len(t, plan.Targets, 3)
	assert.InDelta(t, 2, plan.Targets[0].PricePercent, 1e-9)
	require.NotNil(t, plan.TrailingTP)
	assert.InDelta(t, 2, plan.TrailingTP.TrailPercent, 1e-9)

	// Empty preset name falls back to balanced.
	plan, err = eng.Create(CreateParams{Symbol: "ETH/USDT", EntryPrice: 100, TotalQuantity: 1})
	require.NoError(t, err)
	require.Len(t, plan.Targets, 3)
	assert.InDelta(t, 3, plan.Targets[0].PricePercent, 1e-9)
	assert.Nil(t, plan.TrailingTP)

	_, err = eng.Create(CreateParams{Symbol: "ETH/USDT", EntryPrice: 100, TotalQuantity: 1, Preset: "yolo"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateWithoutRegistryNeedsTargets(t *testing.T) {
	eng := NewEngine(broker.NewSimBroker(), nil, nil)
	_, err := eng.Create(CreateParams{Symbol: "BTC/USDT", EntryPrice: 100, TotalQuantity: 1})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestShortPlanUsesFavorableExcursion(t *testing.T) {
	eng := NewEngine(broker.NewSimBroker(), nil, NewRegistry())
	params := threeTierParams()
	params.Side = "short"
	_, err := eng.Create(params)
	require.NoError(t, err)

	assert.Empty(t, eng.EvaluateSymbol("BTC/USDT", 102).Triggered)
	res := eng.EvaluateSymbol("BTC/USDT", 98)
	require.Len(t, res.Triggered, 1)
}

func TestEvaluateIsolatesQuoteFailures(t *testing.T) {
	sim := broker.NewSimBroker()
	eng := NewEngine(sim, nil, NewRegistry())
	_, err := eng.Create(threeTierParams())
	require.NoError(t, err)
	sim.SetQuoteError("BTC/USDT", errors.New("feed down"))

	res := eng.Evaluate(context.Background())
	assert.Empty(t, res.Triggered)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "BTC/USDT")
}
