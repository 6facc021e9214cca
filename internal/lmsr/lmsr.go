// Package lmsr implements the Logarithmic Market Scoring Rule over an
// arbitrary number of outcomes.
//
// The market maker's state is a quantity vector q (outstanding shares per
// outcome) plus a liquidity parameter b. The cost function is
// C(q) = b * ln(Σ exp(q_i / b)); the instantaneous price of outcome i is the
// softmax dC/dq_i. All functions here are pure; callers own serialization of
// quantity updates.
package lmsr

import (
	"fmt"
	"math"
)

// MinOutcomes is the smallest valid outcome set. A single-outcome market is
// degenerate (its only price is always 1).
const MinOutcomes = 2

// sharesTolerance bounds the bisection in SharesForCost. 1e-9 on the cost
// residual gives well over six significant digits on the share quantity for
// any realistic b.
const sharesTolerance = 1e-9

// maxIterations caps the bisection loop. The interval halves each step, so
// 200 iterations exhausts float64 precision long before the cap is reached.
const maxIterations = 200

// ValidateParams rejects quantity vectors and liquidity parameters that the
// rest of the package would misprice.
func ValidateParams(quantities []float64, b float64) error {
	if len(quantities) < MinOutcomes {
		return fmt.Errorf("lmsr: need at least %d outcomes, got %d", MinOutcomes, len(quantities))
	}
	if b <= 0 {
		return fmt.Errorf("lmsr: liquidity parameter must be > 0, got %g", b)
	}
	for i, q := range quantities {
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return fmt.Errorf("lmsr: quantity[%d] is not finite", i)
		}
	}
	return nil
}

// Cost evaluates the LMSR cost function C(q) = b * ln(Σ exp(q_i / b)) using
// the log-sum-exp trick: the maximum quantity is factored out before
// exponentiating so the intermediate sums never overflow.
func Cost(quantities []float64, b float64) float64 {
	maxQ := quantities[0]
	for _, q := range quantities[1:] {
		if q > maxQ {
			maxQ = q
		}
	}
	sum := 0.0
	for _, q := range quantities {
		sum += math.Exp((q - maxQ) / b)
	}
	return maxQ + b*math.Log(sum)
}

// Prices returns the softmax price vector for the given quantities. The
// result always sums to 1 and every entry is in (0, 1).
func Prices(quantities []float64, b float64) []float64 {
	maxQ := quantities[0]
	for _, q := range quantities[1:] {
		if q > maxQ {
			maxQ = q
		}
	}
	exps := make([]float64, len(quantities))
	sum := 0.0
	for i, q := range quantities {
		exps[i] = math.Exp((q - maxQ) / b)
		sum += exps[i]
	}
	prices := make([]float64, len(quantities))
	for i, e := range exps {
		prices[i] = e / sum
	}
	return prices
}

// CostToBuy returns the cost of buying shares of outcomeIndex at the current
// quantities: C(q + shares*e_i) - C(q).
func CostToBuy(quantities []float64, b float64, outcomeIndex int, shares float64) float64 {
	after := NewQuantities(quantities, outcomeIndex, shares)
	return Cost(after, b) - Cost(quantities, b)
}

// SharesForCost solves for the share quantity delta whose purchase cost on
// outcomeIndex equals netAmount, holding all other quantities fixed. The cost
// function is convex and strictly increasing in delta, so a bisection over an
// exponentially grown bracket always converges.
func SharesForCost(quantities []float64, b float64, outcomeIndex int, netAmount float64) (float64, error) {
	if err := ValidateParams(quantities, b); err != nil {
		return 0, err
	}
	if outcomeIndex < 0 || outcomeIndex >= len(quantities) {
		return 0, fmt.Errorf("lmsr: outcome index %d out of range [0,%d)", outcomeIndex, len(quantities))
	}
	if netAmount <= 0 {
		return 0, fmt.Errorf("lmsr: net amount must be > 0, got %g", netAmount)
	}

	// Grow the upper bracket until it covers the target cost. netAmount
	// shares always cost less than netAmount (price < 1), so netAmount is a
	// natural starting point.
	hi := netAmount
	for CostToBuy(quantities, b, outcomeIndex, hi) < netAmount {
		hi *= 2
		if math.IsInf(hi, 1) {
			return 0, fmt.Errorf("lmsr: cost bracket diverged for amount %g", netAmount)
		}
	}

	lo := 0.0
	for i := 0; i < maxIterations; i++ {
		mid := (lo + hi) / 2
		diff := CostToBuy(quantities, b, outcomeIndex, mid) - netAmount
		if math.Abs(diff) < sharesTolerance {
			return mid, nil
		}
		if diff < 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}

// NewQuantities returns a copy of quantities with shares added to
// outcomeIndex. The input slice is never mutated.
func NewQuantities(quantities []float64, outcomeIndex int, shares float64) []float64 {
	out := make([]float64, len(quantities))
	copy(out, quantities)
	out[outcomeIndex] += shares
	return out
}

// MaxLoss returns the market maker's worst-case subsidy, b * ln(n).
func MaxLoss(n int, b float64) float64 {
	return b * math.Log(float64(n))
}
