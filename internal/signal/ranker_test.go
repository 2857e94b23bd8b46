package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/orb-agent/internal/models"
)

func TestRankOrdersDescendingByPriority(t *testing.T) {
	signals := []models.Signal{
		{Symbol: "A", VWAPDistancePct: 0.1, RSVsSPYPct: 0.1, ORBVolumeRatio: 0.1, Confidence: 0.1, RSI: 40, EntryBarVolatilityPct: 1},
		{Symbol: "B", VWAPDistancePct: 2.0, RSVsSPYPct: 3.0, ORBVolumeRatio: 2.0, Confidence: 0.9, RSI: 65, EntryBarVolatilityPct: 4},
		{Symbol: "C", VWAPDistancePct: 1.0, RSVsSPYPct: 1.5, ORBVolumeRatio: 1.0, Confidence: 0.5, RSI: 50, EntryBarVolatilityPct: 2},
	}

	ranked := Rank(signals)
	require.Len(t, ranked, 3)

	assert.Equal(t, "B", ranked[0].Symbol)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, "C", ranked[1].Symbol)
	assert.Equal(t, 2, ranked[1].Rank)
	assert.Equal(t, "A", ranked[2].Symbol)
	assert.Equal(t, 3, ranked[2].Rank)

	assert.True(t, ranked[0].PriorityScore >= ranked[1].PriorityScore)
	assert.True(t, ranked[1].PriorityScore >= ranked[2].PriorityScore)
}

func TestRankBreaksTiesBySymbolAscending(t *testing.T) {
	signals := []models.Signal{
		{Symbol: "ZZZ", VWAPDistancePct: 1, RSVsSPYPct: 1, ORBVolumeRatio: 1, Confidence: 1, RSI: 1, EntryBarVolatilityPct: 1},
		{Symbol: "AAA", VWAPDistancePct: 1, RSVsSPYPct: 1, ORBVolumeRatio: 1, Confidence: 1, RSI: 1, EntryBarVolatilityPct: 1},
	}

	ranked := Rank(signals)
	require.Len(t, ranked, 2)
	assert.Equal(t, "AAA", ranked[0].Symbol)
	assert.Equal(t, "ZZZ", ranked[1].Symbol)
}

func TestRankSingleSignalCohortScoresMax(t *testing.T) {
	signals := []models.Signal{{Symbol: "SOLO", VWAPDistancePct: 0.5}}
	ranked := Rank(signals)
	require.Len(t, ranked, 1)
	assert.Equal(t, 1, ranked[0].Rank)
}

func TestPercentilesTieAveraging(t *testing.T) {
	pcts := percentiles([]float64{1, 1, 2, 3})
	assert.InDelta(t, 1.0/6.0, pcts[0], 1e-9)
	assert.InDelta(t, 1.0/6.0, pcts[1], 1e-9)
	assert.InDelta(t, 2.0/3.0, pcts[2], 1e-9)
	assert.InDelta(t, 1.0, pcts[3], 1e-9)
}
