package signal

import (
	"sort"

	"github.com/eddiefleurent/orb-agent/internal/models"
)

// Sub-score weights from the component design's priority formula.
const (
	weightVWAP       = 0.27
	weightRS         = 0.25
	weightORBVol     = 0.22
	weightConfidence = 0.13
	weightRSIContext = 0.10
	weightORBRange   = 0.03
)

// Rank computes each signal's six sub-scores via rank-based percentile
// normalization across the cohort (chosen over min-max per the documented
// design-note decision: rank-based is stable under outliers and ties break
// deterministically), combines them into priority_score, and returns the
// cohort sorted descending by priority_score with rank assigned 1..N.
// Ties in priority_score break by symbol ascending. The input slice is not
// mutated; Rank returns a new slice.
func Rank(signals []models.Signal) []models.Signal {
	n := len(signals)
	if n == 0 {
		return nil
	}

	vwap := percentiles(extract(signals, func(s models.Signal) float64 { return s.VWAPDistancePct }))
	rs := percentiles(extract(signals, func(s models.Signal) float64 { return s.RSVsSPYPct }))
	orbVol := percentiles(extract(signals, func(s models.Signal) float64 { return s.ORBVolumeRatio }))
	confidence := percentiles(extract(signals, func(s models.Signal) float64 { return s.Confidence }))
	rsiCtx := percentiles(extract(signals, func(s models.Signal) float64 { return s.RSI }))
	orbRange := percentiles(extract(signals, func(s models.Signal) float64 { return s.EntryBarVolatilityPct }))

	out := make([]models.Signal, n)
	for i, s := range signals {
		s.PriorityScore = weightVWAP*vwap[i] +
			weightRS*rs[i] +
			weightORBVol*orbVol[i] +
			weightConfidence*confidence[i] +
			weightRSIContext*rsiCtx[i] +
			weightORBRange*orbRange[i]
		out[i] = s
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PriorityScore != out[j].PriorityScore {
			return out[i].PriorityScore > out[j].PriorityScore
		}
		return out[i].Symbol < out[j].Symbol
	})

	for i := range out {
		out[i].Rank = i + 1
	}

	return out
}

func extract(signals []models.Signal, f func(models.Signal) float64) []float64 {
	out := make([]float64, len(signals))
	for i, s := range signals {
		out[i] = f(s)
	}
	return out
}

// percentiles maps each value in values to its rank-based percentile in
// [0,1]: position k of n in ascending order scores k/(n-1), so an untied
// lowest value scores 0 and an untied highest scores 1, and tied values
// share the average percentile of the positions they occupy. A cohort of
// one scores 1.0 (nothing to be relatively worse than).
func percentiles(values []float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 1 {
		out[0] = 1
		return out
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	i := 0
	for i < n {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		// average rank position for the tied block [i, j], 0-indexed
		avgRank := float64(i+j) / 2.0
		pct := avgRank / float64(n-1)
		for k := i; k <= j; k++ {
			out[idx[k]] = pct
		}
		i = j + 1
	}

	return out
}
