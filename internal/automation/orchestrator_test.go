package automation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vigil/internal/gateway/broker"
	"vigil/internal/rules"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) SendText(msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordRun(ctx context.Context, rep Report) error {
	args := m.Called(ctx, rep)
	return args.Error(0)
}

func staticSubsystem(name string, out Outcome) Subsystem {
	return Subsystem{Name: name, Run: func(context.Context) Outcome { return out }}
}

func TestMarketClosedGate(t *testing.T) {
	sim := broker.NewSimBroker()
	sim.SetMarketOpen(false)
	rec := &mockRecorder{}
	rec.On("RecordRun", mock.Anything, mock.Anything).Return(nil)
	orch := NewOrchestrator(sim, nil, rec,
		staticSubsystem(ServiceRules, Outcome{Triggered: 1}))

	rep := orch.Run(context.Background(), Options{})
	assert.True(t, rep.Skipped)
	assert.Equal(t, "market closed", rep.Reason)
	assert.False(t, rep.MarketOpen)
	assert.Empty(t, rep.Results)
	rec.AssertNumberOfCalls(t, "RecordRun", 1)

	// Force overrides the gate.
	rep = orch.Run(context.Background(), Options{Force: true})
	assert.False(t, rep.Skipped)
	assert.Equal(t, 1, rep.TotalTriggered)
}

func TestSubsystemErrorsAreLabeledAndIsolated(t *testing.T) {
	sim := broker.NewSimBroker()
	orch := NewOrchestrator(sim, nil, nil,
		staticSubsystem(ServiceRules, Outcome{Evaluated: 3, Triggered: 2}),
		staticSubsystem(ServiceTrailing, Outcome{Errors: []string{"quote BTC/USDT: feed down"}}),
		staticSubsystem(ServiceAlerts, Outcome{Evaluated: 1, Triggered: 1}),
	)

	rep := orch.Run(context.Background(), Options{})
	assert.False(t, rep.Skipped)
	assert.Equal(t, 3, rep.TotalTriggered)
	require.Len(t, rep.TotalErrors, 1)
	assert.Equal(t, "Trailing error: quote BTC/USDT: feed down", rep.TotalErrors[0])

	// The failing subsystem does not disturb the others' results.
	assert.Equal(t, 2, rep.Results[ServiceRules].Triggered)
	assert.Equal(t, 1, rep.Results[ServiceAlerts].Triggered)
}

func TestSubsystemPanicIsRecovered(t *testing.T) {
	sim := broker.NewSimBroker()
	orch := NewOrchestrator(sim, nil, nil,
		Subsystem{Name: ServiceScaled, Run: func(context.Context) Outcome { panic("boom") }},
		staticSubsystem(ServiceRules, Outcome{Triggered: 1}),
	)

	rep := orch.Run(context.Background(), Options{})
	require.Len(t, rep.TotalErrors, 1)
	assert.Equal(t, "Scaled error: boom", rep.TotalErrors[0])
	assert.Equal(t, 1, rep.TotalTriggered)
}

func TestServiceSelection(t *testing.T) {
	sim := broker.NewSimBroker()
	orch := NewOrchestrator(sim, nil, nil,
		staticSubsystem(ServiceRules, Outcome{Triggered: 1}),
		staticSubsystem(ServiceAlerts, Outcome{Triggered: 1}),
	)

	rep := orch.Run(context.Background(), Options{Services: []string{" Rules "}})
	assert.Equal(t, 1, rep.TotalTriggered)
	_, ran := rep.Results[ServiceAlerts]
	assert.False(t, ran)

	rep = orch.Run(context.Background(), Options{})
	assert.Equal(t, 2, rep.TotalTriggered, "empty selection runs everything")
}

func TestSingleFlight(t *testing.T) {
	sim := broker.NewSimBroker()
	orch := NewOrchestrator(sim, nil, nil)

	orch.running.Lock()
	rep := orch.Run(context.Background(), Options{})
	orch.running.Unlock()

	assert.True(t, rep.Skipped)
	assert.Contains(t, rep.Reason, "still running")
}

func TestNotifierFailureIsReportedNotFatal(t *testing.T) {
	sim := broker.NewSimBroker()
	notify := &recordingNotifier{err: errors.New("telegram down")}
	orch := NewOrchestrator(sim, notify, nil,
		staticSubsystem(ServiceRules, Outcome{Triggered: 1}))

	rep := orch.Run(context.Background(), Options{})
	assert.Equal(t, 1, rep.TotalTriggered)
	require.Len(t, rep.TotalErrors, 1)
	assert.Contains(t, rep.TotalErrors[0], "notify")
}

func TestQuietPassSendsNoSummary(t *testing.T) {
	sim := broker.NewSimBroker()
	notify := &recordingNotifier{}
	orch := NewOrchestrator(sim, notify, nil,
		staticSubsystem(ServiceRules, Outcome{Evaluated: 5}))

	orch.Run(context.Background(), Options{})
	assert.Empty(t, notify.messages)
}

func TestEngineBackedSubsystemRendersActions(t *testing.T) {
	sim := broker.NewSimBroker()
	eng := rules.NewEngine(sim, nil)
	_, err := eng.Create(rules.CreateParams{
		Symbol: "BTC/USDT", Kind: rules.KindStopLoss, Side: "long", TriggerValue: 90, Quantity: 1,
	})
	require.NoError(t, err)
	sim.SetPrice("BTC/USDT", 85)

	orch := NewOrchestrator(sim, nil, nil, RulesSubsystem(eng))
	rep := orch.Run(context.Background(), Options{})
	assert.Equal(t, 1, rep.TotalTriggered)
	require.Len(t, rep.Results[ServiceRules].Actions, 1)
	assert.Contains(t, rep.Results[ServiceRules].Actions[0], "BTC/USDT stop_loss")
}
