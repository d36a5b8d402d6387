package broker

import (
	"context"
	"fmt"
	"time"

	"vigil/internal/pkg/circuit"
)

// Guarded wraps a Broker with per-concern circuit breakers so a flaky
// collaborator stops getting hammered mid-pass. An open breaker
// surfaces as an ordinary error for that call; the engines already
// treat collaborator errors as per-entity soft failures.
type Guarded struct {
	inner     Broker
	quotes    *circuit.Breaker
	positions *circuit.Breaker
	clock     *circuit.Breaker
}

var _ Broker = (*Guarded)(nil)

func NewGuarded(inner Broker, threshold int, timeout time.Duration) *Guarded {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Guarded{
		inner:     inner,
		quotes:    circuit.NewBreaker("broker-quotes", threshold, timeout),
		positions: circuit.NewBreaker("broker-positions", threshold, timeout),
		clock:     circuit.NewBreaker("broker-clock", threshold, timeout),
	}
}

func (g *Guarded) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	if !g.quotes.Allow() {
		return Quote{}, fmt.Errorf("quote circuit open for this pass")
	}
	quote, err := g.inner.GetQuote(ctx, symbol)
	if err != nil {
		g.quotes.RecordFailure()
		return Quote{}, err
	}
	g.quotes.RecordSuccess()
	return quote, nil
}

func (g *Guarded) GetPositions(ctx context.Context) ([]Position, error) {
	if !g.positions.Allow() {
		return nil, fmt.Errorf("position circuit open for this pass")
	}
	positions, err := g.inner.GetPositions(ctx)
	if err != nil {
		g.positions.RecordFailure()
		return nil, err
	}
	g.positions.RecordSuccess()
	return positions, nil
}

func (g *Guarded) IsMarketOpen(ctx context.Context) (bool, error) {
	if !g.clock.Allow() {
		return false, fmt.Errorf("clock circuit open for this pass")
	}
	open, err := g.inner.IsMarketOpen(ctx)
	if err != nil {
		g.clock.RecordFailure()
		return false, err
	}
	g.clock.RecordSuccess()
	return open, nil
}
