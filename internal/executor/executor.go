// Package executor implements the Trade Executor: placing a batch of
// entries or a single exit order through the Market Data Gateway, with
// idempotency keyed on client_order_id (the position_id) and retry on
// transient failure. Placement is synchronous: each call returns the fill
// directly, with no order-status polling.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/eddiefleurent/orb-agent/internal/marketdata"
	"github.com/eddiefleurent/orb-agent/internal/models"
	"github.com/eddiefleurent/orb-agent/internal/retry"
)

// Executor places orders through a Gateway, deduplicating by client order
// ID so a retried batch or a crash-resume never double-places a fill.
type Executor struct {
	gw    marketdata.Gateway
	retry *retry.Client

	mu    sync.Mutex
	seen  map[string]marketdata.Fill
}

// New builds an Executor over gw using retry's default backoff policy.
func New(gw marketdata.Gateway) *Executor {
	return &Executor{
		gw:    gw,
		retry: retry.NewClient(gw, retry.DefaultConfig),
		seen:  make(map[string]marketdata.Fill),
	}
}

// PlaceBatch places one entry order per order, in order, returning the
// fills it obtained. A per-order failure does not abort the rest of the
// batch; its error is returned alongside whatever fills did succeed so the
// caller can alert on the specific rejected signal.
func (e *Executor) PlaceBatch(ctx context.Context, orders []Intent) ([]marketdata.Fill, []error) {
	fills := make([]marketdata.Fill, 0, len(orders))
	var errs []error

	for _, o := range orders {
		fill, err := e.place(ctx, o.ClientOrderID, o.Symbol, o.Side, o.Quantity, marketdata.OrderTypeEntry)
		if err != nil {
			errs = append(errs, fmt.Errorf("place entry %s (%s): %w", o.ClientOrderID, o.Symbol, err))
			continue
		}
		fills = append(fills, fill)
	}

	return fills, errs
}

// PlaceExit places a single exit order for an open position.
func (e *Executor) PlaceExit(ctx context.Context, p *models.Position) (marketdata.Fill, error) {
	return e.place(ctx, p.PositionID, p.Symbol, p.Side, p.Quantity, marketdata.OrderTypeExit)
}

func (e *Executor) place(ctx context.Context, clientID, symbol string, side models.Side, qty int, orderType marketdata.OrderType) (marketdata.Fill, error) {
	e.mu.Lock()
	if fill, ok := e.seen[clientID]; ok {
		e.mu.Unlock()
		return fill, nil
	}
	e.mu.Unlock()

	fill, err := e.retry.PlaceOrderWithRetry(ctx, clientID, symbol, side, qty, orderType)
	if err != nil {
		return marketdata.Fill{}, err
	}

	e.mu.Lock()
	e.seen[clientID] = fill
	e.mu.Unlock()

	return fill, nil
}

// CancelAll is a no-op for the mock/synchronous gateway: PlaceOrder fills
// immediately so there is nothing in flight to cancel. A live gateway
// backed by an asynchronous broker would track open order IDs here.
func (e *Executor) CancelAll(_ context.Context) error {
	return nil
}

// Intent is one entry order the sizer produced, ready for the executor.
type Intent struct {
	ClientOrderID string
	Symbol        string
	Side          models.Side
	Quantity      int
}
