package quotecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/orb-agent/internal/marketdata"
)

func TestCacheQuotesHitsWithinTTL(t *testing.T) {
	gw := marketdata.NewDeterministicMockGateway([]string{"SPY"}, 1)
	c := New(gw)

	q1, err := c.Quotes(context.Background(), []string{"SPY"})
	require.NoError(t, err)

	q2, err := c.Quotes(context.Background(), []string{"SPY"})
	require.NoError(t, err)

	assert.Equal(t, q1["SPY"].Price, q2["SPY"].Price, "second read within TTL must hit the cache, not re-fetch")
}

func TestCacheQuotesRefetchesAfterTTL(t *testing.T) {
	gw := marketdata.NewDeterministicMockGateway([]string{"SPY"}, 1)
	c := New(gw).WithTTLs(time.Nanosecond, DefaultIndicatorTTL)

	_, err := c.Quotes(context.Background(), []string{"SPY"})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = c.Quotes(context.Background(), []string{"SPY"})
	require.NoError(t, err)
}

func TestCacheIndicatorsCallsFnOnceWithinTTL(t *testing.T) {
	gw := marketdata.NewDeterministicMockGateway([]string{"SPY"}, 1)
	c := New(gw)

	calls := 0
	fn := func(_ context.Context, _ string) (Indicators, error) {
		calls++
		return Indicators{RSI: 55}, nil
	}

	v1, err := c.Indicators(context.Background(), "SPY", fn)
	require.NoError(t, err)
	v2, err := c.Indicators(context.Background(), "SPY", fn)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, v1, v2)
}

func TestCacheInvalidateForcesRefetch(t *testing.T) {
	gw := marketdata.NewDeterministicMockGateway([]string{"SPY"}, 1)
	c := New(gw)

	_, err := c.Quotes(context.Background(), []string{"SPY"})
	require.NoError(t, err)
	c.Invalidate("SPY")

	_, err = c.Quotes(context.Background(), []string{"SPY"})
	require.NoError(t, err)
}
