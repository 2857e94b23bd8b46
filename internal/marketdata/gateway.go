// Package marketdata defines the Market Data Gateway: the narrow
// interface the core consumes for batched quotes, bars, ADV, and order
// placement. The wire protocol of any real broker is out of scope; this
// package only owns the interface, a circuit-breaker wrapper, and a mock
// implementation for demo mode.
package marketdata

import (
	"context"
	"time"

	"github.com/eddiefleurent/orb-agent/internal/models"
)

// Bar is one OHLCV bar for a symbol over [Start, End).
type Bar struct {
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
	Start  time.Time
	End    time.Time
}

// Fill is the result of an order placement request.
type Fill struct {
	ClientOrderID string
	Symbol        string
	Side          models.Side
	Quantity      int
	Price         float64
	FilledAt      time.Time
	Rejected      bool
	RejectReason  string
}

// OrderType distinguishes entries from exits for the gateway's place_order call.
type OrderType string

const (
	OrderTypeEntry OrderType = "entry"
	OrderTypeExit  OrderType = "exit"
)

// Gateway is the narrow capability interface the core depends on. Exactly
// the methods: batch_quote, bar, adv, place_order.
type Gateway interface {
	// BatchQuote fetches quotes for up to 25 symbols per call (the gateway
	// itself is rate-limited to <=10 req/s with batch size 25; callers doing
	// larger universes must chunk).
	BatchQuote(ctx context.Context, symbols []string) (map[string]models.Quote, error)
	// Bar fetches a single OHLCV bar for the prefetch step.
	Bar(ctx context.Context, symbol string, start, end time.Time) (Bar, error)
	// ADV returns the 90-day average daily volume for a symbol.
	ADV(ctx context.Context, symbol string) (int64, error)
	// PlaceOrder submits an order and returns its fill or rejection.
	// clientID is the idempotency key (the position_id).
	PlaceOrder(ctx context.Context, clientID, symbol string, side models.Side, qty int, orderType OrderType) (Fill, error)
}

// BatchSize is the gateway's documented maximum symbols per batch_quote call.
const BatchSize = 25

// ChunkSymbols splits a universe into BatchSize-sized chunks for BatchQuote callers.
func ChunkSymbols(symbols []string) [][]string {
	if len(symbols) == 0 {
		return nil
	}
	var chunks [][]string
	for i := 0; i < len(symbols); i += BatchSize {
		end := i + BatchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		chunks = append(chunks, symbols[i:end])
	}
	return chunks
}
