package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/orb-agent/internal/marketdata"
)

func bar(open, high, low, close float64, volume int64, end time.Time) marketdata.Bar {
	return marketdata.Bar{Open: open, High: high, Low: low, Close: close, Volume: volume, Start: end.Add(-time.Minute), End: end}
}

func TestAccumulatorVWAPWeightsByVolume(t *testing.T) {
	a := NewAccumulator()
	now := time.Now()
	a.AddBar(bar(100, 101, 99, 100, 100, now))
	a.AddBar(bar(100, 103, 101, 102, 300, now.Add(time.Minute)))

	snap := a.snapshot()
	require.True(t, snap.haveBar)
	// typical1=100, typical2=102; vwap = (100*100+102*300)/400
	assert.InDelta(t, 101.5, snap.vwap, 0.01)
}

func TestAccumulatorIgnoresStaleBar(t *testing.T) {
	a := NewAccumulator()
	now := time.Now()
	a.AddBar(bar(100, 101, 99, 100, 100, now))
	a.AddBar(bar(200, 201, 199, 200, 999, now.Add(-time.Minute)))

	snap := a.snapshot()
	assert.Equal(t, 100.0, snap.lastClose, "older bar must not overwrite newer state")
}

func TestAccumulatorRSIRisesOnSustainedGains(t *testing.T) {
	a := NewAccumulator()
	now := time.Now()
	price := 100.0
	for i := 0; i < 20; i++ {
		price += 0.5
		a.AddBar(bar(price-0.5, price, price-0.5, price, 10_000, now.Add(time.Duration(i)*time.Minute)))
	}
	snap := a.snapshot()
	assert.Greater(t, snap.rsi, 70.0, "a sustained uptrend should read overbought")
}

func TestAccumulatorRSIZeroBeforeSeeded(t *testing.T) {
	a := NewAccumulator()
	a.AddBar(bar(100, 101, 99, 100, 10_000, time.Now()))
	snap := a.snapshot()
	assert.Equal(t, 0.0, snap.rsi, "first bar alone cannot seed a change")
}

func TestAccumulatorMACDHistogramPositiveOnUptrend(t *testing.T) {
	a := NewAccumulator()
	now := time.Now()
	price := 100.0
	for i := 0; i < 40; i++ {
		price += 0.3
		a.AddBar(bar(price-0.3, price, price-0.3, price, 10_000, now.Add(time.Duration(i)*time.Minute)))
	}
	snap := a.snapshot()
	assert.Greater(t, snap.macdHist, 0.0)
}
