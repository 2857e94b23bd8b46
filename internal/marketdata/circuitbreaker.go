package marketdata

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/orb-agent/internal/models"
)

// CircuitBreakerSettings configures the gobreaker.CircuitBreaker wrapping a
// live Gateway, named and shaped after a typical broker wrapper.
type CircuitBreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultCircuitBreakerSettings trips once at least 10 requests have been
// seen in a one-minute counting interval and at least half of them failed,
// then cools down for thirty seconds before probing again with up to three
// requests.
var DefaultCircuitBreakerSettings = CircuitBreakerSettings{
	MaxRequests:  3,
	Interval:     time.Minute,
	Timeout:      30 * time.Second,
	MinRequests:  10,
	FailureRatio: 0.5,
}

// CircuitBreakerGateway wraps a live Gateway with a gobreaker.CircuitBreaker
// so repeated upstream failures fail fast instead of hanging T-Fetcher
// workers on every call.
type CircuitBreakerGateway struct {
	inner   Gateway
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakerGateway wraps inner with DefaultCircuitBreakerSettings.
func NewCircuitBreakerGateway(inner Gateway) *CircuitBreakerGateway {
	return NewCircuitBreakerGatewayWithSettings(inner, DefaultCircuitBreakerSettings)
}

// NewCircuitBreakerGatewayWithSettings wraps inner with explicit settings.
func NewCircuitBreakerGatewayWithSettings(inner Gateway, s CircuitBreakerSettings) *CircuitBreakerGateway {
	st := gobreaker.Settings{
		Name:        "marketdata-gateway",
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= s.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
	}
	return &CircuitBreakerGateway{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// State exposes the underlying breaker state for health reporting.
func (c *CircuitBreakerGateway) State() gobreaker.State {
	return c.breaker.State()
}

func (c *CircuitBreakerGateway) BatchQuote(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.inner.BatchQuote(ctx, symbols)
	})
	if err != nil {
		return nil, err
	}
	return out.(map[string]models.Quote), nil
}

func (c *CircuitBreakerGateway) Bar(ctx context.Context, symbol string, start, end time.Time) (Bar, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.inner.Bar(ctx, symbol, start, end)
	})
	if err != nil {
		return Bar{}, err
	}
	return out.(Bar), nil
}

func (c *CircuitBreakerGateway) ADV(ctx context.Context, symbol string) (int64, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.inner.ADV(ctx, symbol)
	})
	if err != nil {
		return 0, err
	}
	return out.(int64), nil
}

func (c *CircuitBreakerGateway) PlaceOrder(ctx context.Context, clientID, symbol string, side models.Side, qty int, orderType OrderType) (Fill, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.inner.PlaceOrder(ctx, clientID, symbol, side, qty, orderType)
	})
	if err != nil {
		return Fill{}, err
	}
	return out.(Fill), nil
}

var _ Gateway = (*CircuitBreakerGateway)(nil)
var _ Gateway = (*MockGateway)(nil)
