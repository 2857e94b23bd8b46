// Package indicators computes the derived feature bundle the Signal
// Generator and Position Monitor both consume through quotecache's
// IndicatorFunc contract: RSI, MACD histogram, VWAP distance, relative
// strength vs SPY, and volume ratio against average daily volume. Values
// are built incrementally off one-minute bars the same way an
// pack's VWAP collector folds each new bar into a running typical-price
// sum, generalized here past VWAP alone to the whole bundle.
package indicators

import (
	"sync"
	"time"

	"github.com/eddiefleurent/orb-agent/internal/marketdata"
)

const (
	rsiPeriod  = 14
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// Accumulator tracks one symbol's day-to-date bar history and derives VWAP,
// Wilder-smoothed RSI, and MACD from it incrementally, one bar at a time.
type Accumulator struct {
	mu sync.Mutex

	cumPV     float64
	cumVolume int64

	sessionOpenPrice float64
	lastClose        float64
	haveBar          bool
	lastBarEnd       time.Time

	prevClose float64
	avgGain   float64
	avgLoss   float64
	rsiSeeded bool

	emaFast   float64
	emaSlow   float64
	emaSignal float64
	emaSeeded bool
}

// NewAccumulator returns an empty accumulator, ready for its first bar.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// AddBar folds one OHLCV bar into the running state. Bars must arrive in
// time order; a bar whose End does not advance past the last one seen is
// treated as a stale gateway retry and dropped rather than re-applied.
func (a *Accumulator) AddBar(bar marketdata.Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.haveBar && !bar.End.After(a.lastBarEnd) {
		return
	}

	typical := (bar.High + bar.Low + bar.Close) / 3
	a.cumPV += typical * float64(bar.Volume)
	a.cumVolume += bar.Volume

	if !a.haveBar {
		a.sessionOpenPrice = bar.Open
	}

	a.updateRSI(bar.Close)
	a.updateMACD(bar.Close)

	a.lastClose = bar.Close
	a.lastBarEnd = bar.End
	a.haveBar = true
}

func (a *Accumulator) updateRSI(close float64) {
	if a.prevClose == 0 {
		a.prevClose = close
		return
	}

	change := close - a.prevClose
	a.prevClose = close

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	if !a.rsiSeeded {
		a.avgGain = gain
		a.avgLoss = loss
		a.rsiSeeded = true
		return
	}
	a.avgGain = (a.avgGain*(rsiPeriod-1) + gain) / rsiPeriod
	a.avgLoss = (a.avgLoss*(rsiPeriod-1) + loss) / rsiPeriod
}

func (a *Accumulator) rsi() float64 {
	if !a.rsiSeeded {
		return 0
	}
	if a.avgLoss == 0 {
		return 100
	}
	rs := a.avgGain / a.avgLoss
	return 100 - (100 / (1 + rs))
}

func ema(prev, price float64, period int) float64 {
	k := 2.0 / (float64(period) + 1)
	return price*k + prev*(1-k)
}

func (a *Accumulator) updateMACD(close float64) {
	if !a.emaSeeded {
		a.emaFast = close
		a.emaSlow = close
		a.emaSignal = 0
		a.emaSeeded = true
		return
	}
	a.emaFast = ema(a.emaFast, close, macdFast)
	a.emaSlow = ema(a.emaSlow, close, macdSlow)
	macd := a.emaFast - a.emaSlow
	a.emaSignal = ema(a.emaSignal, macd, macdSignal)
}

func (a *Accumulator) macdHistogram() float64 {
	if !a.emaSeeded {
		return 0
	}
	return (a.emaFast - a.emaSlow) - a.emaSignal
}

func (a *Accumulator) vwap() float64 {
	if a.cumVolume == 0 {
		return 0
	}
	return a.cumPV / float64(a.cumVolume)
}

// snapshot is the accumulator's derived state at one instant, copied out
// from behind the lock so callers never hold it while a concurrent Poll
// mutates the accumulator.
type snapshot struct {
	vwap        float64
	rsi         float64
	macdHist    float64
	lastClose   float64
	sessionOpen float64
	cumVolume   int64
	haveBar     bool
}

func (a *Accumulator) snapshot() snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return snapshot{
		vwap:        a.vwap(),
		rsi:         a.rsi(),
		macdHist:    a.macdHistogram(),
		lastClose:   a.lastClose,
		sessionOpen: a.sessionOpenPrice,
		cumVolume:   a.cumVolume,
		haveBar:     a.haveBar,
	}
}
