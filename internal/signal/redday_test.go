package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/orb-agent/internal/models"
)

func weakCohort(n, weakCount int, rsi float64) []models.Signal {
	out := make([]models.Signal, n)
	for i := 0; i < n; i++ {
		volRatio := 1.5
		if i < weakCount {
			volRatio = 0.5
		}
		out[i] = models.Signal{
			Symbol:      string(rune('A' + i)),
			VolumeRatio: volRatio,
			RSI:         rsi,
		}
	}
	return out
}

func TestEvaluateP3WeakVolumeAloneBlocksTrading(t *testing.T) {
	cohort := weakCohort(10, 9, 55)
	gated, rejected, v := Evaluate(cohort)

	assert.Equal(t, PatternWeakVolumeAlone, v.PatternMatched)
	assert.True(t, v.IsRedDay)
	assert.False(t, v.OverrideApplied)
	_ = gated
	_ = rejected
}

func TestEvaluateOverrideClearsRedDay(t *testing.T) {
	cohort := weakCohort(10, 9, 55)
	for i := range cohort {
		cohort[i].MACDHistogram = 1.0
		cohort[i].RSVsSPYPct = 3.0
	}

	_, _, v := Evaluate(cohort)
	assert.True(t, v.OverrideApplied)
	assert.False(t, v.IsRedDay)
}

func TestEvaluateFailsafeClearsRedDayOnZeroRSI(t *testing.T) {
	cohort := weakCohort(10, 9, 0)
	gated, _, v := Evaluate(cohort)

	assert.True(t, v.FailsafeActive)
	assert.False(t, v.IsRedDay)
	for _, s := range gated {
		assert.False(t, s.IsRedDay, "invariant 9: failsafe must clear is_red_day on every retained signal")
	}
}

func TestSignalLevelFilterRejectsOversoldWeakVolume(t *testing.T) {
	cohort := []models.Signal{
		{Symbol: "A", VolumeRatio: 0.5, RSI: 35},
		{Symbol: "B", VolumeRatio: 1.5, RSI: 35},
	}
	gated, rejected, _ := Evaluate(cohort)

	require.Len(t, rejected, 1)
	assert.Equal(t, "A", rejected[0].Signal.Symbol)
	assert.Equal(t, ReasonOversold, rejected[0].Reason)
	require.Len(t, gated, 1)
	assert.Equal(t, "B", gated[0].Symbol)
}

func TestSignalLevelFilterRejectsBelowVWAP(t *testing.T) {
	cohort := []models.Signal{
		{Symbol: "A", VolumeRatio: 0.5, RSI: 55, MACDHistogram: 1, RSVsSPYPct: 1, VWAPDistancePct: -1.0},
	}
	_, rejected, _ := Evaluate(cohort)
	require.Len(t, rejected, 1)
	assert.Equal(t, ReasonBelowVWAP, rejected[0].Reason)
}
