package marketdata

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/orb-agent/internal/models"
)

type flakyGateway struct {
	calls atomic.Int64
	fail  atomic.Bool
}

func (f *flakyGateway) BatchQuote(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, errors.New("upstream unavailable")
	}
	return map[string]models.Quote{"Q": {Symbol: "Q", Price: 100}}, nil
}

func (f *flakyGateway) Bar(ctx context.Context, symbol string, start, end time.Time) (Bar, error) {
	return Bar{Symbol: symbol}, nil
}

func (f *flakyGateway) ADV(ctx context.Context, symbol string) (int64, error) {
	return 1_000_000, nil
}

func (f *flakyGateway) PlaceOrder(ctx context.Context, clientID, symbol string, side models.Side, qty int, orderType OrderType) (Fill, error) {
	return Fill{ClientOrderID: clientID, Symbol: symbol}, nil
}

var _ Gateway = (*flakyGateway)(nil)

func testSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      20 * time.Millisecond,
		MinRequests:  3,
		FailureRatio: 0.5,
	}
}

func TestCircuitBreakerGatewayPassesThroughOnSuccess(t *testing.T) {
	inner := &flakyGateway{}
	gw := NewCircuitBreakerGatewayWithSettings(inner, testSettings())

	quotes, err := gw.BatchQuote(context.Background(), []string{"Q"})
	require.NoError(t, err)
	require.Equal(t, 100.0, quotes["Q"].Price)
	require.Equal(t, gobreaker.StateClosed, gw.State())
}

func TestCircuitBreakerGatewayTripsAfterFailureRatioExceeded(t *testing.T) {
	inner := &flakyGateway{}
	inner.fail.Store(true)
	gw := NewCircuitBreakerGatewayWithSettings(inner, testSettings())

	for i := 0; i < 3; i++ {
		_, err := gw.BatchQuote(context.Background(), []string{"Q"})
		require.Error(t, err)
	}

	require.Equal(t, gobreaker.StateOpen, gw.State())

	_, err := gw.BatchQuote(context.Background(), []string{"Q"})
	require.ErrorIs(t, err, gobreaker.ErrOpenState, "an open breaker must fail fast without calling the inner gateway")
}

func TestCircuitBreakerGatewayRecoversAfterTimeout(t *testing.T) {
	inner := &flakyGateway{}
	inner.fail.Store(true)
	gw := NewCircuitBreakerGatewayWithSettings(inner, testSettings())

	for i := 0; i < 3; i++ {
		_, _ = gw.BatchQuote(context.Background(), []string{"Q"})
	}
	require.Equal(t, gobreaker.StateOpen, gw.State())

	inner.fail.Store(false)
	time.Sleep(30 * time.Millisecond)

	_, err := gw.BatchQuote(context.Background(), []string{"Q"})
	require.NoError(t, err)
	require.Equal(t, gobreaker.StateClosed, gw.State())
}

func TestCircuitBreakerGatewayPlaceOrderPassesThrough(t *testing.T) {
	inner := &flakyGateway{}
	gw := NewCircuitBreakerGatewayWithSettings(inner, testSettings())

	fill, err := gw.PlaceOrder(context.Background(), "pos1", "Q", models.Long, 10, OrderTypeEntry)
	require.NoError(t, err)
	require.Equal(t, "pos1", fill.ClientOrderID)
}

func TestDefaultCircuitBreakerSettingsAreSane(t *testing.T) {
	require.Greater(t, DefaultCircuitBreakerSettings.MinRequests, uint32(0))
	require.Greater(t, DefaultCircuitBreakerSettings.FailureRatio, 0.0)
	require.LessOrEqual(t, DefaultCircuitBreakerSettings.FailureRatio, 1.0)
}
