package marketdata

import (
	"context"
	cryptorand "crypto/rand"
	"fmt"
	"math"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/eddiefleurent/orb-agent/internal/models"
)

// MockGateway is a self-contained demo-mode Gateway: it fabricates
// plausible quotes, bars and ADV figures and simulates fills at the
// symbol's next random-walk price. It is safe for concurrent use; a comparable
// data provider documented itself as NOT goroutine-safe, so this version
// adds a mutex around the mutable per-symbol state instead of repeating
// that caveat.
type MockGateway struct {
	mu            sync.Mutex
	prices        map[string]float64
	deterministic bool
	rng           *rand.Rand
}

// NewMockGateway seeds a starting price for every symbol in universe using
// cryptographically random jitter, matching a secureFloat64
// seeding of its demo price.
func NewMockGateway(universe []string) *MockGateway {
	g := &MockGateway{prices: make(map[string]float64, len(universe))}
	for _, s := range universe {
		g.prices[s] = 100.0 + secureFloat64()*300
	}
	return g
}

// NewDeterministicMockGateway seeds prices from a math/rand source for
// reproducible tests, mirroring a deterministic data provider pattern.
func NewDeterministicMockGateway(universe []string, seed int64) *MockGateway {
	rng := rand.New(rand.NewSource(seed)) // #nosec G404 -- deterministic test data
	g := &MockGateway{
		prices:        make(map[string]float64, len(universe)),
		deterministic: true,
		rng:           rng,
	}
	for _, s := range universe {
		g.prices[s] = 100.0 + rng.Float64()*300
	}
	return g
}

func secureFloat64() float64 {
	n, err := cryptorand.Int(cryptorand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

func secureInt63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	r, err := cryptorand.Int(cryptorand.Reader, big.NewInt(n))
	if err != nil {
		return n / 2
	}
	return r.Int64()
}

func (g *MockGateway) randomFloat64() float64 {
	if g.deterministic && g.rng != nil {
		return g.rng.Float64()
	}
	return secureFloat64()
}

func (g *MockGateway) randomInt63n(n int64) int64 {
	if g.deterministic && g.rng != nil {
		if n <= 0 {
			return 0
		}
		return g.rng.Int63n(n)
	}
	return secureInt63n(n)
}

func (g *MockGateway) walk(symbol string) float64 {
	price := g.prices[symbol]
	if price == 0 {
		price = 100.0 + g.randomFloat64()*300
	}
	price += (g.randomFloat64() - 0.5) * price * 0.004
	price = math.Max(0.01, price)
	g.prices[symbol] = price
	return price
}

// BatchQuote returns a simulated quote for every requested symbol.
func (g *MockGateway) BatchQuote(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]models.Quote, len(symbols))
	now := time.Now()
	for _, sym := range symbols {
		price := g.walk(sym)
		spread := price * 0.0005
		out[sym] = models.Quote{
			Symbol:    sym,
			Price:     price,
			Bid:       price - spread/2,
			Ask:       price + spread/2,
			Volume:    g.randomInt63n(5_000_000),
			High:      price * 1.01,
			Low:       price * 0.99,
			Open:      price,
			Timestamp: now,
			Source:    models.SourceFallback,
		}
	}
	return out, nil
}

// Bar returns a simulated OHLCV bar covering [start, end).
func (g *MockGateway) Bar(ctx context.Context, symbol string, start, end time.Time) (Bar, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	open := g.walk(symbol)
	high := open
	low := open
	for i := 0; i < 4; i++ {
		p := g.walk(symbol)
		high = math.Max(high, p)
		low = math.Min(low, p)
	}
	return Bar{
		Symbol: symbol,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  g.prices[symbol],
		Volume: g.randomInt63n(2_000_000) + 100_000,
		Start:  start,
		End:    end,
	}, nil
}

// ADV returns a simulated 90-day average daily volume.
func (g *MockGateway) ADV(ctx context.Context, _ string) (int64, error) {
	return 3_000_000 + g.randomInt63n(20_000_000), nil
}

// PlaceOrder simulates an immediate fill at the symbol's next random-walk
// price (one step on from the last quote).
func (g *MockGateway) PlaceOrder(ctx context.Context, clientID, symbol string, side models.Side, qty int, _ OrderType) (Fill, error) {
	g.mu.Lock()
	price := g.walk(symbol)
	g.mu.Unlock()

	if qty <= 0 {
		return Fill{}, fmt.Errorf("place order %s: quantity must be positive, got %d", clientID, qty)
	}

	return Fill{
		ClientOrderID: clientID,
		Symbol:        symbol,
		Side:          side,
		Quantity:      qty,
		Price:         price,
		FilledAt:      time.Now(),
	}, nil
}
