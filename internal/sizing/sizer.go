// Package sizing implements the Batch Position Sizer: a pure,
// synchronous, six-step pipeline from a ranked signal cohort to integer
// share quantities within a finite capital budget. It performs no I/O.
package sizing

import (
	"fmt"
	"math"

	"github.com/eddiefleurent/orb-agent/internal/models"
)

// Params bundles the sizer's configuration, named after the
// notation: T target deployment fraction, M max-position fraction, ADV cap
// fraction and whether the ADV cap (slip guard) is enabled at all.
type Params struct {
	TargetDeploymentFraction float64
	MaxPositionFraction      float64
	ADVCapFraction           float64
	ADVCapEnabled            bool
}

// DefaultParams matches the config defaults documented in the external
// interfaces section.
var DefaultParams = Params{
	TargetDeploymentFraction: 0.90,
	MaxPositionFraction:      0.35,
	ADVCapFraction:           0.01,
	ADVCapEnabled:            true,
}

// overageSlack is the 5% tolerance both the try-plus-one rounding step and
// the redistribution step are allowed to push the total budget past A*T.
const overageSlack = 0.05

// Order is one sized position ready for the executor, in the same rank
// order as its originating signal.
type Order struct {
	Symbol   string
	Rank     int
	Price    float64
	Quantity int
}

// rankMultiplier implements the fixed rank-multiplier allocation table.
func rankMultiplier(rank int) float64 {
	switch {
	case rank == 1:
		return 3.0
	case rank == 2:
		return 2.5
	case rank == 3:
		return 2.0
	case rank >= 4 && rank <= 5:
		return 1.71
	case rank >= 6 && rank <= 10:
		return 1.5
	case rank >= 11 && rank <= 15:
		return 1.2
	default:
		return 1.0
	}
}

// Size runs the six-step sizing pipeline over a ranked, already-gated
// signal cohort. signals must already be sorted by Rank ascending (the
// Ranker's output contract); cash is the account's current cash_balance;
// adv maps symbol to its 90-day average daily volume.
//
// Size never mutates signals and always returns orders in the same order
// as the input signals (postcondition: stable output order == input rank
// order), dropping only symbols whose final quantity rounds to zero.
func Size(signals []models.Signal, adv map[string]int64, cash float64, p Params) ([]Order, error) {
	n := len(signals)
	if n == 0 {
		return nil, nil
	}
	if cash < 0 {
		return nil, fmt.Errorf("sizing: cash balance must be non-negative, got %.2f", cash)
	}

	target := cash * p.TargetDeploymentFraction
	maxPosition := cash * p.MaxPositionFraction

	// Step 1: rank multipliers against fair share.
	fairShare := target / float64(n)
	alloc1 := make([]float64, n)
	for i, s := range signals {
		alloc1[i] = fairShare * rankMultiplier(s.Rank)
	}

	// Step 2: max-position cap.
	alloc2 := make([]float64, n)
	for i := range alloc1 {
		alloc2[i] = math.Min(alloc1[i], maxPosition)
	}

	// Step 3: ADV cap (slip guard).
	alloc3 := make([]float64, n)
	for i, s := range signals {
		if !p.ADVCapEnabled {
			alloc3[i] = alloc2[i]
			continue
		}
		cap := math.Inf(1)
		if v, ok := adv[s.Symbol]; ok {
			cap = float64(v) * p.ADVCapFraction * s.CurrentPrice
		}
		alloc3[i] = math.Min(alloc2[i], cap)
	}

	// Step 4: normalize to the target budget if we overshot it; never
	// scale up when under budget (redistribution handles under-fill).
	sum3 := 0.0
	for _, a := range alloc3 {
		sum3 += a
	}
	alloc4 := make([]float64, n)
	if sum3 > target && sum3 > 0 {
		scale := target / sum3
		for i, a := range alloc3 {
			alloc4[i] = a * scale
		}
	} else {
		copy(alloc4, alloc3)
	}

	// Step 5: integer rounding, try-plus-one.
	qty := make([]int, n)
	for i, s := range signals {
		if s.CurrentPrice <= 0 {
			continue
		}
		base := int(math.Floor(alloc4[i] / s.CurrentPrice))
		q := base
		plusOne := base + 1
		candidateCost := float64(plusOne) * s.CurrentPrice
		withinOverage := alloc4[i] == 0 || candidateCost <= alloc4[i]*(1+overageSlack)
		withinCap := candidateCost <= maxPosition
		if withinOverage && withinCap {
			q = plusOne
		}
		qty[i] = q
	}

	// Step 6: redistribution of unused budget in rank order.
	spent := 0.0
	for i, s := range signals {
		spent += float64(qty[i]) * s.CurrentPrice
	}
	unused := target - spent
	budgetCeiling := target * (1 + overageSlack)

	for {
		progressed := false
		minRemainingPrice := math.Inf(1)
		for _, s := range signals {
			if s.CurrentPrice <= 0 {
				continue
			}
			if s.CurrentPrice < minRemainingPrice {
				minRemainingPrice = s.CurrentPrice
			}
		}
		if unused < minRemainingPrice {
			break
		}

		for i, s := range signals {
			if s.CurrentPrice <= 0 {
				continue
			}
			candidateQty := qty[i] + 1
			candidateCost := float64(candidateQty) * s.CurrentPrice
			if candidateCost > maxPosition {
				continue
			}
			if spent+s.CurrentPrice > budgetCeiling {
				continue
			}
			if s.CurrentPrice > unused {
				continue
			}
			qty[i] = candidateQty
			spent += s.CurrentPrice
			unused -= s.CurrentPrice
			progressed = true
		}

		if !progressed {
			break
		}
	}

	orders := make([]Order, 0, n)
	for i, s := range signals {
		if qty[i] <= 0 {
			continue
		}
		orders = append(orders, Order{
			Symbol:   s.Symbol,
			Rank:     s.Rank,
			Price:    s.CurrentPrice,
			Quantity: qty[i],
		})
	}

	return orders, nil
}
