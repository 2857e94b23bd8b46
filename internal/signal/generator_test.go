package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/orb-agent/internal/models"
	"github.com/eddiefleurent/orb-agent/internal/quotecache"
)

func TestEvaluateLongRequiresAllThreeConditions(t *testing.T) {
	or := models.OpeningRange{Symbol: "QQQ", High: 100, Low: 98, Open: 99, Close: 99.5}

	assert.True(t, EvaluateLong(or, 100.2, Bar{Open: 100.3, Close: 100.5}))
	assert.False(t, EvaluateLong(or, 100.05, Bar{Open: 100.3, Close: 100.5}), "breaks buffer requirement")
	assert.False(t, EvaluateLong(or, 100.2, Bar{Open: 100.3, Close: 99.9}), "prev bar close must exceed orb high")
	assert.False(t, EvaluateLong(or, 100.2, Bar{Open: 100.6, Close: 100.5}), "prev bar must be green")
}

func TestCollectorEmitsAtMostOneSignalPerSymbol(t *testing.T) {
	c := NewCollector()
	or := models.OpeningRange{Symbol: "QQQ", High: 100, Low: 98, Open: 99, Close: 99.5}
	quote := models.Quote{Symbol: "QQQ", Price: 100.2}
	prevBar := Bar{Open: 100.3, Close: 100.5}
	ind := quotecache.Indicators{RSI: 60, VolumeRatio: 1.2}

	emitted := c.Scan("QQQ", or, quote, prevBar, ind, time.Now())
	require.True(t, emitted)

	ind2 := quotecache.Indicators{RSI: 65, VolumeRatio: 1.5}
	emitted2 := c.Scan("QQQ", or, quote, prevBar, ind2, time.Now())
	require.True(t, emitted2)

	signals := c.Signals()
	require.Len(t, signals, 1)
	assert.Equal(t, 65.0, signals[0].RSI, "later scan must update the existing signal, not create a new one")
}

func TestCollectorSkipsWhenBreakoutDoesNotHold(t *testing.T) {
	c := NewCollector()
	or := models.OpeningRange{Symbol: "QQQ", High: 100, Low: 98, Open: 99, Close: 99.5}
	quote := models.Quote{Symbol: "QQQ", Price: 99.0}
	prevBar := Bar{Open: 100.3, Close: 100.5}

	emitted := c.Scan("QQQ", or, quote, prevBar, quotecache.Indicators{}, time.Now())
	assert.False(t, emitted)
	assert.Empty(t, c.Signals())
}
