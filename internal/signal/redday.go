package signal

import (
	"github.com/eddiefleurent/orb-agent/internal/models"
)

// Pattern names the portfolio-level red-day pattern that matched, if any.
type Pattern string

const (
	PatternNone                  Pattern = ""
	PatternOversoldWeak          Pattern = "P1_OVERSOLD_WEAK"
	PatternOverboughtWeak        Pattern = "P2_OVERBOUGHT_WEAK"
	PatternWeakVolumeAlone       Pattern = "P3_WEAK_VOLUME_ALONE"
)

// RejectReason names why the signal-level filter dropped a signal.
type RejectReason string

const (
	ReasonOversold     RejectReason = "OVERSOLD"
	ReasonNoMomentum   RejectReason = "NO_MOMENTUM"
	ReasonBelowVWAP    RejectReason = "BELOW_VWAP"
)

// Verdict summarizes one portfolio-level red-day evaluation.
type Verdict struct {
	PatternMatched Pattern
	OverrideApplied bool
	IsRedDay        bool
	FailsafeActive  bool

	PctWeakVolume      float64
	PctOversold        float64
	PctOverbought      float64
	AvgRSI             float64
	AvgMACD            float64
	AvgVWAPDistance    float64
	AvgRSVsSPY         float64
	AvgVolumeRatio     float64
}

// Rejected pairs a signal with why the signal-level filter dropped it.
type Rejected struct {
	Signal models.Signal
	Reason RejectReason
}

// Evaluate runs the portfolio-level red-day patterns, the 3-tier override,
// the data-quality failsafe, and finally the signal-level filter over a
// ranked cohort. It returns the gated (tradeable) signals, every rejected
// signal with its reason for the archive, and the portfolio verdict.
//
// Signals are not mutated in place; Evaluate returns new values with
// IsRedDay set, matching the staged-pipeline design (RankedSignal ->
// GatedSignal).
func Evaluate(cohort []models.Signal) ([]models.Signal, []Rejected, Verdict) {
	v := computeVerdict(cohort)

	tagged := make([]models.Signal, len(cohort))
	for i, s := range cohort {
		s.IsRedDay = v.IsRedDay
		tagged[i] = s
	}

	var gated []models.Signal
	var rejected []Rejected
	for _, s := range tagged {
		if reason, reject := signalLevelReject(s); reject {
			rejected = append(rejected, Rejected{Signal: s, Reason: reason})
			continue
		}
		gated = append(gated, s)
	}

	return gated, rejected, v
}

func computeVerdict(cohort []models.Signal) Verdict {
	n := len(cohort)
	if n == 0 {
		return Verdict{}
	}

	var weak, oversold, overbought int
	var sumRSI, sumMACD, sumVWAP, sumRS, sumVolRatio float64
	for _, s := range cohort {
		if s.WeakVolume() {
			weak++
		}
		if s.RSI < 40 {
			oversold++
		}
		if s.RSI > 80 {
			overbought++
		}
		sumRSI += s.RSI
		sumMACD += s.MACDHistogram
		sumVWAP += s.VWAPDistancePct
		sumRS += s.RSVsSPYPct
		sumVolRatio += s.VolumeRatio
	}

	v := Verdict{
		PctWeakVolume:   float64(weak) / float64(n),
		PctOversold:     float64(oversold) / float64(n),
		PctOverbought:   float64(overbought) / float64(n),
		AvgRSI:          sumRSI / float64(n),
		AvgMACD:         sumMACD / float64(n),
		AvgVWAPDistance: sumVWAP / float64(n),
		AvgRSVsSPY:      sumRS / float64(n),
		AvgVolumeRatio:  sumVolRatio / float64(n),
	}

	switch {
	case v.PctOversold >= 0.70 && v.PctWeakVolume >= 0.80:
		v.PatternMatched = PatternOversoldWeak
	case v.PctOverbought >= 0.80 && v.PctWeakVolume >= 0.80:
		v.PatternMatched = PatternOverboughtWeak
	case v.PctWeakVolume >= 0.80:
		v.PatternMatched = PatternWeakVolumeAlone
	}

	primary := v.AvgMACD > 0 && v.AvgRSVsSPY > 2.0
	secondary := v.AvgMACD > 10.0 && v.AvgRSVsSPY == 0
	tertiary := v.AvgVWAPDistance > 1.0 && v.AvgMACD > 0
	v.OverrideApplied = primary || secondary || tertiary

	v.IsRedDay = v.PatternMatched != PatternNone && !v.OverrideApplied

	// Data-quality failsafe: stale feeds reporting zero RSI or zero volume
	// ratio across the whole cohort must not be allowed to imply a red day;
	// clear it and flag the failsafe so the archive and the options filter
	// agree (invariant 9).
	if v.AvgRSI == 0 || v.AvgVolumeRatio == 0 {
		v.FailsafeActive = true
		v.IsRedDay = false
	}

	return v
}

// signalLevelReject applies the signal-level filter: reject a weak-volume
// signal that also shows oversold RSI, no momentum, or price below VWAP.
func signalLevelReject(s models.Signal) (RejectReason, bool) {
	if !s.WeakVolume() {
		return "", false
	}
	if s.RSI < 40 {
		return ReasonOversold, true
	}
	if s.MACDHistogram <= 0 && s.RSVsSPYPct <= 0 {
		return ReasonNoMomentum, true
	}
	if s.VWAPDistancePct < -0.5 {
		return ReasonBelowVWAP, true
	}
	return "", false
}
