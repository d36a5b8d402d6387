package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vigil/internal/pkg/symbol"
)

// SimBroker is an in-memory broker used for dry runs and tests. Quotes
// and positions are set explicitly; reads are deterministic.
type SimBroker struct {
	mu         sync.RWMutex
	quotes     map[string]Quote
	positions  []Position
	marketOpen bool

	quoteErr    map[string]error
	positionErr error
}

var _ Broker = (*SimBroker)(nil)

func NewSimBroker() *SimBroker {
	return &SimBroker{
		quotes:     make(map[string]Quote),
		quoteErr:   make(map[string]error),
		marketOpen: true,
	}
}

// SetPrice installs a quote whose bid/ask straddle last by a fixed
// spread, and keeps any previously set volume.
func (s *SimBroker) SetPrice(sym string, last float64) {
	key := symbol.Normalize(sym)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.quotes[key]
	s.quotes[key] = Quote{
		Symbol:    key,
		Bid:       last * 0.9995,
		Ask:       last * 1.0005,
		Last:      last,
		Volume:    prev.Volume,
		UpdatedAt: time.Now(),
	}
}

func (s *SimBroker) SetVolume(sym string, volume float64) {
	key := symbol.Normalize(sym)
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.quotes[key]
	q.Symbol = key
	q.Volume = volume
	s.quotes[key] = q
}

func (s *SimBroker) SetQuoteError(sym string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.quoteErr, symbol.Normalize(sym))
		return
	}
	s.quoteErr[symbol.Normalize(sym)] = err
}

func (s *SimBroker) SetPositions(positions []Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append([]Position(nil), positions...)
}

func (s *SimBroker) SetPositionError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positionErr = err
}

func (s *SimBroker) SetMarketOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marketOpen = open
}

func (s *SimBroker) GetQuote(_ context.Context, sym string) (Quote, error) {
	key := symbol.Normalize(sym)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.quoteErr[key]; ok {
		return Quote{}, err
	}
	quote, ok := s.quotes[key]
	if !ok || quote.Last <= 0 {
		return Quote{}, fmt.Errorf("sim broker: no quote for %s", key)
	}
	return quote, nil
}

func (s *SimBroker) GetPositions(_ context.Context) ([]Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.positionErr != nil {
		return nil, s.positionErr
	}
	return append([]Position(nil), s.positions...), nil
}

func (s *SimBroker) IsMarketOpen(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marketOpen, nil
}
