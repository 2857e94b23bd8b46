package indicators

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/orb-agent/internal/marketdata"
	"github.com/eddiefleurent/orb-agent/internal/models"
)

// scriptedGateway returns one fixed bar per symbol and a fixed ADV,
// regardless of the requested window, so engine tests can assert exact
// derived values instead of tolerating MockGateway's random walk.
type scriptedGateway struct {
	bars map[string]marketdata.Bar
	adv  map[string]int64
}

func (g *scriptedGateway) BatchQuote(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	return nil, nil
}

func (g *scriptedGateway) Bar(ctx context.Context, symbol string, start, end time.Time) (marketdata.Bar, error) {
	b := g.bars[symbol]
	b.Symbol = symbol
	b.Start, b.End = start, end
	return b, nil
}

func (g *scriptedGateway) ADV(ctx context.Context, symbol string) (int64, error) {
	return g.adv[symbol], nil
}

func (g *scriptedGateway) PlaceOrder(ctx context.Context, clientID, symbol string, side models.Side, qty int, orderType marketdata.OrderType) (marketdata.Fill, error) {
	return marketdata.Fill{}, nil
}

var _ marketdata.Gateway = (*scriptedGateway)(nil)

func TestEnginePollAndComputeDerivesFullBundle(t *testing.T) {
	sessionStart := time.Now()
	gw := &scriptedGateway{
		bars: map[string]marketdata.Bar{
			"QQQ": {Open: 100, High: 101, Low: 99.5, Close: 101, Volume: 50_000},
			"SPY": {Open: 400, High: 400.5, Low: 399, Close: 399.5, Volume: 50_000},
		},
		adv: map[string]int64{"QQQ": 10_000_000},
	}

	e := NewEngine(gw, sessionStart)
	now := sessionStart.Add(time.Minute)
	require.NoError(t, e.Poll(context.Background(), []string{"QQQ"}, now))

	ind, err := e.Compute(context.Background(), "QQQ")
	require.NoError(t, err)

	assert.Equal(t, 0.0, ind.RSI, "a single bar cannot seed RSI yet")
	assert.NotEqual(t, 0.0, ind.VWAPDistancePct, "vwap distance should be derived from the one bar seen so far")
	// QQQ gained ~1% while SPY lost ~0.125%, so QQQ should read positive RS.
	assert.Greater(t, ind.RSVsSPYPct, 0.0)
	assert.Greater(t, ind.VolumeRatio, 0.0)
}

func TestEngineComputeZeroIndicatorsBeforeAnyPoll(t *testing.T) {
	sessionStart := time.Now()
	gw := &scriptedGateway{adv: map[string]int64{"QQQ": 10_000_000}}
	e := NewEngine(gw, sessionStart)

	ind, err := e.Compute(context.Background(), "QQQ")
	require.NoError(t, err)
	assert.Equal(t, 0.0, ind.RSI)
	assert.Equal(t, 0.0, ind.VWAPDistancePct)
	assert.Equal(t, 0.0, ind.RSVsSPYPct)
}

func TestVolumeRatioClampsElapsedFraction(t *testing.T) {
	assert.InDelta(t, 1.0, volumeRatio(1_000_000, 1_000_000, sessionDuration*2), 0.001, "elapsed beyond the session must clamp to a full day's pace")
	assert.Equal(t, 0.0, volumeRatio(1_000, 0, time.Hour), "zero ADV must report no reading rather than divide by zero")
}
