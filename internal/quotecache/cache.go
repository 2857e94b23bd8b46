// Package quotecache implements the short-lived TTL cache sitting
// between the Orchestrator and the Market Data Gateway: quotes are cached
// for about a second and derived indicators (RSI, MACD, VWAP distance, etc.)
// for about five minutes, so the 30s scanner and the 30s Position Monitor
// loop don't double up on gateway calls within the same tick.
package quotecache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/orb-agent/internal/marketdata"
	"github.com/eddiefleurent/orb-agent/internal/models"
)

// fetcherPoolSize bounds concurrent BatchQuote chunk calls, matching the
// T-Fetcher pool (size ~8), itself bounded below the gateway's own 10 req/s
// rate limit.
const fetcherPoolSize = 8

// DefaultQuoteTTL and DefaultIndicatorTTL match this component's design
// for C3: quotes are near-real-time, indicators are recomputed far less often.
const (
	DefaultQuoteTTL     = time.Second
	DefaultIndicatorTTL = 5 * time.Minute
)

type quoteEntry struct {
	quote   models.Quote
	fetched time.Time
}

// Indicators is the bundle of derived technical values the ranker and
// red-day filter consume, cached separately from raw quotes because they
// are more expensive to compute and change more slowly.
type Indicators struct {
	RSI                   float64
	MACDHistogram         float64
	VWAPDistancePct       float64
	RSVsSPYPct            float64
	VolumeRatio           float64
	EntryBarVolatilityPct float64
}

type indicatorEntry struct {
	values  Indicators
	fetched time.Time
}

// IndicatorFunc computes a fresh Indicators bundle for a symbol; it is
// supplied by the caller (the Orchestrator, from its indicators Engine)
// rather than owned here,
// since computing indicators needs bars and history this cache does not
// itself fetch.
type IndicatorFunc func(ctx context.Context, symbol string) (Indicators, error)

// Cache is a get-or-fetch TTL cache in front of a Gateway's BatchQuote and
// an injected indicator function. It is safe for concurrent use by the
// scanner and monitor goroutines.
type Cache struct {
	gw marketdata.Gateway

	quoteTTL     time.Duration
	indicatorTTL time.Duration

	mu         sync.Mutex
	quotes     map[string]quoteEntry
	indicators map[string]indicatorEntry
}

// New builds a Cache in front of gw with the default TTLs.
func New(gw marketdata.Gateway) *Cache {
	return &Cache{
		gw:           gw,
		quoteTTL:     DefaultQuoteTTL,
		indicatorTTL: DefaultIndicatorTTL,
		quotes:       make(map[string]quoteEntry),
		indicators:   make(map[string]indicatorEntry),
	}
}

// WithTTLs overrides the default TTLs, for tests that want to force misses
// or hits deterministically.
func (c *Cache) WithTTLs(quoteTTL, indicatorTTL time.Duration) *Cache {
	c.quoteTTL = quoteTTL
	c.indicatorTTL = indicatorTTL
	return c
}

// Quotes returns quotes for symbols, fetching only the ones whose cached
// entry is stale or missing. A single BatchQuote call covers every miss.
func (c *Cache) Quotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	now := time.Now()

	c.mu.Lock()
	out := make(map[string]models.Quote, len(symbols))
	var miss []string
	for _, s := range symbols {
		if e, ok := c.quotes[s]; ok && now.Sub(e.fetched) < c.quoteTTL {
			out[s] = e.quote
			continue
		}
		miss = append(miss, s)
	}
	c.mu.Unlock()

	if len(miss) == 0 {
		return out, nil
	}

	var freshMu sync.Mutex
	fresh := make(map[string]models.Quote, len(miss))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetcherPoolSize)
	for _, chunk := range marketdata.ChunkSymbols(miss) {
		chunk := chunk
		g.Go(func() error {
			q, err := c.gw.BatchQuote(gctx, chunk)
			if err != nil {
				return err
			}
			freshMu.Lock()
			for k, v := range q {
				fresh[k] = v
			}
			freshMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	for k, v := range fresh {
		c.quotes[k] = quoteEntry{quote: v, fetched: now}
		out[k] = v
	}
	c.mu.Unlock()

	return out, nil
}

// Indicators returns the cached indicator bundle for symbol, calling fn to
// recompute it only once the indicator TTL has elapsed.
func (c *Cache) Indicators(ctx context.Context, symbol string, fn IndicatorFunc) (Indicators, error) {
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.indicators[symbol]; ok && now.Sub(e.fetched) < c.indicatorTTL {
		c.mu.Unlock()
		return e.values, nil
	}
	c.mu.Unlock()

	values, err := fn(ctx, symbol)
	if err != nil {
		return Indicators{}, err
	}

	c.mu.Lock()
	c.indicators[symbol] = indicatorEntry{values: values, fetched: now}
	c.mu.Unlock()

	return values, nil
}

// Invalidate drops any cached quote for symbol, used when a fill changes
// the price a caller should trust more than a stale cache entry.
func (c *Cache) Invalidate(symbol string) {
	c.mu.Lock()
	delete(c.quotes, symbol)
	c.mu.Unlock()
}
