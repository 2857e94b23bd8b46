package indicators

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/orb-agent/internal/marketdata"
	"github.com/eddiefleurent/orb-agent/internal/quotecache"
)

// fetcherPoolSize bounds how many bar fetches Poll issues concurrently,
// matching the named T-Fetcher pool (size ~8).
const fetcherPoolSize = 8

// SPYSymbol is the relative-strength benchmark every symbol is compared
// against for RSVsSPYPct.
const SPYSymbol = "SPY"

// sessionDuration is the regular-hours trading session length (9:30-16:00
// ET), used to pace expected volume for the volume-ratio feature.
const sessionDuration = 6*time.Hour + 30*time.Minute

// Engine owns one Accumulator per symbol (plus SPY) and serves as the
// concrete quotecache.IndicatorFunc both the Signal Generator and the
// Position Monitor share, so the two consumers never compute the feature
// bundle two different ways.
type Engine struct {
	gw marketdata.Gateway

	mu           sync.Mutex
	accs         map[string]*Accumulator
	adv          map[string]int64
	sessionStart time.Time
	now          time.Time
	barInterval  time.Duration
}

// NewEngine returns an Engine polling gw for bar data, anchored to
// sessionStart (the market open instant for the current trading day).
func NewEngine(gw marketdata.Gateway, sessionStart time.Time) *Engine {
	return &Engine{
		gw:           gw,
		accs:         make(map[string]*Accumulator),
		adv:          make(map[string]int64),
		sessionStart: sessionStart,
		now:          sessionStart,
		barInterval:  time.Minute,
	}
}

func (e *Engine) accumulator(symbol string) *Accumulator {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.accs[symbol]
	if !ok {
		a = NewAccumulator()
		e.accs[symbol] = a
	}
	return a
}

// Poll fetches the latest bar for every symbol in symbols plus SPY and
// folds each into its accumulator. The Orchestrator calls this once per
// scan tick during SO_COLLECTION and once per monitor tick during
// MONITORING so Compute never has to do gateway I/O of its own. Fetches
// fan out over a bounded pool of fetcherPoolSize goroutines (the T-Fetcher
// pool) via errgroup rather than going one symbol at a time.
func (e *Engine) Poll(ctx context.Context, symbols []string, now time.Time) error {
	start := now.Add(-e.barInterval)

	all := make([]string, 0, len(symbols)+1)
	all = append(all, symbols...)
	all = append(all, SPYSymbol)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetcherPoolSize)

	for _, sym := range all {
		sym := sym
		g.Go(func() error {
			bar, err := e.gw.Bar(gctx, sym, start, now)
			if err != nil {
				return fmt.Errorf("fetching bar for %s: %w", sym, err)
			}
			e.accumulator(sym).AddBar(bar)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
	return nil
}

func (e *Engine) advFor(ctx context.Context, symbol string) (int64, error) {
	e.mu.Lock()
	if v, ok := e.adv[symbol]; ok {
		e.mu.Unlock()
		return v, nil
	}
	e.mu.Unlock()

	v, err := e.gw.ADV(ctx, symbol)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	e.adv[symbol] = v
	e.mu.Unlock()
	return v, nil
}

// Compute implements quotecache.IndicatorFunc: it derives the full feature
// bundle from accumulated bar state plus a cached ADV lookup. It issues no
// bar-fetching I/O of its own; Poll must be called first to keep the
// accumulators current.
func (e *Engine) Compute(ctx context.Context, symbol string) (quotecache.Indicators, error) {
	snap := e.accumulator(symbol).snapshot()
	spySnap := e.accumulator(SPYSymbol).snapshot()

	adv, err := e.advFor(ctx, symbol)
	if err != nil {
		return quotecache.Indicators{}, err
	}

	ind := quotecache.Indicators{
		RSI:           snap.rsi,
		MACDHistogram: snap.macdHist,
	}

	if snap.haveBar && snap.vwap != 0 {
		ind.VWAPDistancePct = (snap.lastClose - snap.vwap) / snap.vwap * 100
	}

	if snap.haveBar && snap.sessionOpen != 0 && spySnap.haveBar && spySnap.sessionOpen != 0 {
		symReturn := (snap.lastClose - snap.sessionOpen) / snap.sessionOpen * 100
		spyReturn := (spySnap.lastClose - spySnap.sessionOpen) / spySnap.sessionOpen * 100
		ind.RSVsSPYPct = symReturn - spyReturn
	}

	e.mu.Lock()
	elapsed := e.now.Sub(e.sessionStart)
	e.mu.Unlock()
	ind.VolumeRatio = volumeRatio(snap.cumVolume, adv, elapsed)

	return ind, nil
}

// volumeRatio compares cumulative day-to-date volume against the volume
// expected by this point in the session if the day traded exactly at its
// average daily pace, so 1.0 means "on pace", >1 means running hot.
func volumeRatio(cumVolume, adv int64, elapsed time.Duration) float64 {
	if adv <= 0 {
		return 0
	}
	frac := elapsed.Seconds() / sessionDuration.Seconds()
	if frac < 0.01 {
		frac = 0.01
	}
	if frac > 1 {
		frac = 1
	}
	expected := float64(adv) * frac
	if expected <= 0 {
		return 0
	}
	return float64(cumVolume) / expected
}
