// Package signal implements the Signal Generator, Signal Ranker,
// and Red-Day Filter: the pipeline that turns a captured opening range
// plus live quotes into a ranked, gated set of entries ready for sizing.
//
// Each stage returns a new immutable value rather than mutating its input in
// place, per the staged-pipeline redesign: RawSignal (Collector output) ->
// RankedSignal (Ranker output) -> GatedSignal (RedDayFilter output).
package signal

import (
	"time"

	"github.com/eddiefleurent/orb-agent/internal/models"
	"github.com/eddiefleurent/orb-agent/internal/quotecache"
)

// BreakoutBuffer is the 10bp buffer on the opening-range high the breakout
// condition requires.
const BreakoutBuffer = 1.001

// Bar is the previous-bar OHLC the generator needs to confirm a breakout;
// kept narrow and local rather than importing marketdata.Bar, since the
// generator only ever looks at open/close.
type Bar struct {
	Open  float64
	Close float64
}

// EvaluateLong reports whether the three-condition bullish breakout rule
// holds. Symmetric SHORT rules exist in the data model (Side) but no call
// site in this package ever constructs one, matching the baseline
// configuration described in the component design.
func EvaluateLong(or models.OpeningRange, currentPrice float64, prevBar Bar) bool {
	if currentPrice < or.High*BreakoutBuffer {
		return false
	}
	if prevBar.Close <= or.High {
		return false
	}
	if prevBar.Close <= prevBar.Open {
		return false
	}
	return true
}

// Collector holds the at-most-one-signal-per-symbol state for the
// collection window: a later scan updates the feature bundle on an
// already-emitted signal instead of creating a new one.
type Collector struct {
	bySymbol map[string]*models.Signal
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{bySymbol: make(map[string]*models.Signal)}
}

// Scan evaluates the breakout rule for symbol and, on a hold, emits a new
// signal or refreshes the feature bundle of the one already emitted today.
// It returns false when no signal exists yet and the breakout rule does not
// hold, i.e. there is nothing to do this scan.
func (c *Collector) Scan(
	symbol string,
	or models.OpeningRange,
	quote models.Quote,
	prevBar Bar,
	ind quotecache.Indicators,
	now time.Time,
) bool {
	existing, emitted := c.bySymbol[symbol]

	if !emitted {
		if !EvaluateLong(or, quote.Price, prevBar) {
			return false
		}
		s := &models.Signal{
			Symbol:       symbol,
			Side:         models.Long,
			CurrentPrice: quote.Price,
			GeneratedAt:  now,
		}
		c.applyIndicators(s, or, ind, now)
		c.bySymbol[symbol] = s
		return true
	}

	c.applyIndicators(existing, or, ind, now)
	existing.CurrentPrice = quote.Price
	existing.UpdatedAt = now
	return true
}

func (c *Collector) applyIndicators(s *models.Signal, or models.OpeningRange, ind quotecache.Indicators, now time.Time) {
	s.RSI = ind.RSI
	s.MACDHistogram = ind.MACDHistogram
	s.VWAPDistancePct = ind.VWAPDistancePct
	s.RSVsSPYPct = ind.RSVsSPYPct
	s.VolumeRatio = ind.VolumeRatio
	s.EntryBarVolatilityPct = or.RangePct()
	s.ORBVolumeRatio = orbVolumeRatio(or, ind)
	s.Confidence = confidence(ind)
	s.UpdatedAt = now
}

// orbVolumeRatio scales the captured opening-range volume, in millions of
// shares, by the indicator bundle's VolumeRatio (itself a ratio of
// current-to-average volume). It returns 0 when VolumeRatio is 0; no
// average volume is divided out.
func orbVolumeRatio(or models.OpeningRange, ind quotecache.Indicators) float64 {
	if ind.VolumeRatio == 0 {
		return 0
	}
	return float64(or.Volume) / 1_000_000 * ind.VolumeRatio
}

// confidence folds momentum and relative strength into a single [0,1] score
// used as one of the ranker's sub-scores.
func confidence(ind quotecache.Indicators) float64 {
	score := 0.5
	if ind.MACDHistogram > 0 {
		score += 0.25
	}
	if ind.RSVsSPYPct > 0 {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Signals returns every collected signal as a slice, in no particular order
// (the Ranker imposes the order).
func (c *Collector) Signals() []models.Signal {
	out := make([]models.Signal, 0, len(c.bySymbol))
	for _, s := range c.bySymbol {
		out = append(out, *s)
	}
	return out
}

// Reset clears the collector for a new trading day.
func (c *Collector) Reset() {
	c.bySymbol = make(map[string]*models.Signal)
}
