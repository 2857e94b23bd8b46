// Package health implements the Portfolio Health Monitor: a
// 15-minute snapshot over open and closed-today positions that raises
// EMERGENCY/WARNING actions from five red flags, via a single-pass metric
// computation over a position snapshot.
package health

import (
	"fmt"

	"github.com/eddiefleurent/orb-agent/internal/models"
)

// Action is the outcome of a health evaluation.
type Action string

const (
	ActionNone      Action = "NONE"
	ActionWarning   Action = "WARNING"
	ActionEmergency Action = "EMERGENCY"
)

// Thresholds holds the five red-flag cutoffs, exposed so
// configuration can override them in tests without touching this file.
type Thresholds struct {
	MinWinRate        float64
	MinAvgPnLPct      float64
	MinMomentumPct    float64
	MinAvgPeakPct     float64
	MaxPctLosingNow   float64
}

// DefaultThresholds are the five red-flag cutoffs evaluated each tick.
var DefaultThresholds = Thresholds{
	MinWinRate:      0.35,
	MinAvgPnLPct:    -0.005,
	MinMomentumPct:  0.40,
	MinAvgPeakPct:   0.008,
	MaxPctLosingNow: 1.00,
}

// Metrics is the five-number snapshot computed each evaluation.
type Metrics struct {
	WinRate             float64
	AvgPnLPct           float64
	PctMomentumPositive float64
	AvgPeakPct          float64
	PctLosingNow        float64
}

// Result is one health evaluation's outcome: the metrics, how many red
// flags fired, and the resulting action.
type Result struct {
	Metrics   Metrics
	FlagCount int
	Action    Action
}

// computeMetrics partitions the five metrics across open and closed-today
// positions the way a blended realized/unrealized view implies but does
// not spell out precisely:
// win_rate and avg_pnl_pct blend realized (closed-today) and unrealized
// (open) outcomes since both represent "how is today going", while
// momentum/peak/losing-now describe only currently open risk and so are
// computed over open positions alone. Recorded as a deliberate design
// decision since no single obvious partition applies to both groups.
func computeMetrics(open []models.Position, closedToday []models.ClosedTrade, currentPrices map[string]float64) Metrics {
	total := len(open) + len(closedToday)
	if total == 0 {
		return Metrics{WinRate: 1, AvgPnLPct: 0, PctMomentumPositive: 1, AvgPeakPct: 1, PctLosingNow: 0}
	}

	wins := 0
	sumPnLPct := 0.0
	for _, t := range closedToday {
		sumPnLPct += t.PnLPct
		if t.PnLPct > 0 {
			wins++
		}
	}

	openCount := len(open)
	momentumPositive := 0
	losingNow := 0
	sumPeakPct := 0.0

	for _, p := range open {
		price, ok := currentPrices[p.Symbol]
		if !ok {
			price = p.EntryPrice
		}
		unrealized := p.UnrealizedPct(price)
		sumPnLPct += unrealized
		if unrealized > 0 {
			wins++
		}
		if unrealized < 0 {
			losingNow++
		}
		peakPct := p.PeakPct()
		sumPeakPct += peakPct
		if peakPct > 0 {
			momentumPositive++
		}
	}

	m := Metrics{
		WinRate:   float64(wins) / float64(total),
		AvgPnLPct: sumPnLPct / float64(total),
	}
	if openCount > 0 {
		m.PctMomentumPositive = float64(momentumPositive) / float64(openCount)
		m.AvgPeakPct = sumPeakPct / float64(openCount)
		m.PctLosingNow = float64(losingNow) / float64(openCount)
	} else {
		// No open exposure: nothing can be "losing now" or lacking momentum.
		m.PctMomentumPositive = 1
		m.PctLosingNow = 0
		m.AvgPeakPct = 1
	}
	return m
}

// Evaluate computes the five-metric snapshot and resulting Action for the
// current portfolio state. currentPrices supplies the latest quote per
// symbol for open positions; a missing entry falls back to entry price
// (treated as flat, never itself a red flag).
func Evaluate(open []models.Position, closedToday []models.ClosedTrade, currentPrices map[string]float64, th Thresholds) Result {
	if len(open) == 0 && len(closedToday) == 0 {
		return Result{Metrics: computeMetrics(open, closedToday, currentPrices), Action: ActionNone}
	}

	m := computeMetrics(open, closedToday, currentPrices)

	flags := 0
	if m.WinRate < th.MinWinRate {
		flags++
	}
	if m.AvgPnLPct < th.MinAvgPnLPct {
		flags++
	}
	if m.PctMomentumPositive < th.MinMomentumPct {
		flags++
	}
	if m.AvgPeakPct < th.MinAvgPeakPct {
		flags++
	}
	if m.PctLosingNow >= th.MaxPctLosingNow {
		flags++
	}

	action := ActionNone
	switch {
	case flags >= 3:
		action = ActionEmergency
	case flags == 2:
		action = ActionWarning
	}

	return Result{Metrics: m, FlagCount: flags, Action: action}
}

// WindowKey formats a health-check tick's timestamp as the dedup key
// stored in the DailyMarker's health_windows_done set.
func WindowKey(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
