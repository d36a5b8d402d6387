// Package broker defines the quote/position/clock collaborator the
// automation engines depend on. The engines only ever read from a
// Broker; order submission stays with the external execution layer.
package broker

import (
	"context"
	"time"
)

// Quote is a point-in-time price snapshot for one symbol.
type Quote struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64
	Volume    float64 // rolling 24h base volume
	UpdatedAt time.Time
}

// Position is one open position as reported by the execution layer.
type Position struct {
	Symbol              string
	Qty                 float64
	AvgEntryPrice       float64
	UnrealizedPL        float64
	UnrealizedPLPercent float64
	CostBasis           float64
}

// Broker supplies market and portfolio state on demand. Every call may
// fail; callers catch failures at the smallest possible scope and carry
// on with the rest of the pass.
type Broker interface {
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	GetPositions(ctx context.Context) ([]Position, error)
	IsMarketOpen(ctx context.Context) (bool, error)
}
