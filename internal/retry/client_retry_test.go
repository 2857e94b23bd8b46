package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/orb-agent/internal/marketdata"
	"github.com/eddiefleurent/orb-agent/internal/models"
)

// flakyGateway fails the first N PlaceOrder calls with a transient error,
// then succeeds.
type flakyGateway struct {
	marketdata.Gateway
	failures int32
	calls    int32
}

func (f *flakyGateway) PlaceOrder(ctx context.Context, clientID, symbol string, side models.Side, qty int, orderType marketdata.OrderType) (marketdata.Fill, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return marketdata.Fill{}, errors.New("connection reset by peer")
	}
	return marketdata.Fill{ClientOrderID: clientID, Symbol: symbol, Quantity: qty}, nil
}

func fastConfig() Config {
	return Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Timeout: time.Second}
}

func TestPlaceOrderWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	gw := &flakyGateway{failures: 2}
	c := NewClient(gw, fastConfig())

	fill, err := c.PlaceOrderWithRetry(context.Background(), "id1", "Q", models.Long, 10, marketdata.OrderTypeEntry)
	require.NoError(t, err)
	require.Equal(t, 10, fill.Quantity)
	require.Equal(t, int32(3), gw.calls)
}

func TestPlaceOrderWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	gw := &flakyGateway{failures: 100}
	c := NewClient(gw, fastConfig())

	_, err := c.PlaceOrderWithRetry(context.Background(), "id1", "Q", models.Long, 10, marketdata.OrderTypeEntry)
	require.Error(t, err)
	require.Equal(t, int32(4), gw.calls) // 1 initial + 3 retries
}

func TestPlaceOrderWithRetryDoesNotRetryNonTransientError(t *testing.T) {
	gw := &flakyGatewayPermanent{}
	c := NewClient(gw, fastConfig())

	_, err := c.PlaceOrderWithRetry(context.Background(), "id1", "Q", models.Long, 10, marketdata.OrderTypeEntry)
	require.Error(t, err)
	require.Equal(t, 1, gw.calls)
}

type flakyGatewayPermanent struct {
	marketdata.Gateway
	calls int
}

func (f *flakyGatewayPermanent) PlaceOrder(ctx context.Context, clientID, symbol string, side models.Side, qty int, orderType marketdata.OrderType) (marketdata.Fill, error) {
	f.calls++
	return marketdata.Fill{}, errors.New("insufficient buying power")
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	err := Do(context.Background(), fastConfig(), func() error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int32(3), calls)
}

func TestDoSurfacesAfterExhaustingRetries(t *testing.T) {
	err := Do(context.Background(), fastConfig(), func() error {
		return errors.New("network unreachable")
	})
	require.Error(t, err)
}
