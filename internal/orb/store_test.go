package orb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/orb-agent/internal/marketdata"
)

func TestCaptureFillsEveryUniverseSymbol(t *testing.T) {
	gw := marketdata.NewDeterministicMockGateway([]string{"SPY", "QQQ"}, 5)
	s := New(gw)

	err := s.Capture(context.Background(), []string{"SPY", "QQQ"}, "2026-03-10", time.Now(), time.Now())
	require.NoError(t, err)

	or, ok := s.Get("SPY")
	require.True(t, ok)
	assert.Equal(t, "SPY", or.Symbol)
	assert.Equal(t, "2026-03-10", or.Date)

	assert.Equal(t, 1.0, s.Coverage([]string{"SPY", "QQQ"}))
}

func TestResetClearsCapturedRanges(t *testing.T) {
	gw := marketdata.NewDeterministicMockGateway([]string{"SPY"}, 5)
	s := New(gw)
	require.NoError(t, s.Capture(context.Background(), []string{"SPY"}, "2026-03-10", time.Now(), time.Now()))

	s.Reset()

	_, ok := s.Get("SPY")
	assert.False(t, ok)
	assert.Equal(t, 0.0, s.Coverage([]string{"SPY"}))
}
