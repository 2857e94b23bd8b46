package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGatewayDeterministicRepeatable(t *testing.T) {
	g1 := NewDeterministicMockGateway([]string{"SPY", "QQQ"}, 42)
	g2 := NewDeterministicMockGateway([]string{"SPY", "QQQ"}, 42)

	q1, err := g1.BatchQuote(context.Background(), []string{"SPY", "QQQ"})
	require.NoError(t, err)
	q2, err := g2.BatchQuote(context.Background(), []string{"SPY", "QQQ"})
	require.NoError(t, err)

	assert.Equal(t, q1["SPY"].Price, q2["SPY"].Price)
	assert.Equal(t, q1["QQQ"].Volume, q2["QQQ"].Volume)
}

func TestMockGatewayPlaceOrderRejectsNonPositiveQty(t *testing.T) {
	g := NewDeterministicMockGateway([]string{"SPY"}, 1)
	_, err := g.PlaceOrder(context.Background(), "pos-1", "SPY", "LONG", 0, OrderTypeEntry)
	assert.Error(t, err)
}

func TestMockGatewayBarRangeContainsOpenClose(t *testing.T) {
	g := NewDeterministicMockGateway([]string{"SPY"}, 7)
	bar, err := g.Bar(context.Background(), "SPY", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, bar.High, bar.Open)
	assert.LessOrEqual(t, bar.Low, bar.Open)
	assert.GreaterOrEqual(t, bar.High, bar.Close)
	assert.LessOrEqual(t, bar.Low, bar.Close)
}

func TestChunkSymbols(t *testing.T) {
	symbols := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		symbols = append(symbols, "S")
	}
	chunks := ChunkSymbols(symbols)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 25)
	assert.Len(t, chunks[2], 10)
}
