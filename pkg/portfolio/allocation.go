package portfolio

import (
	"fmt"
	"math"

	"github.com/aristath/riskengine/pkg/formulas"
)

// WeightSumTolerance is the allowed deviation of the weight sum from 1.
const WeightSumTolerance = 1e-6

// longOnlyTolerance is how far below zero a long-only weight may drift
// numerically.
const longOnlyTolerance = 1e-9

// Allocation is the result of a portfolio construction: ordered assets,
// their weights, and annualized performance figures. Read-only downstream.
type Allocation struct {
	Assets         []string  `json:"assets"`
	Weights        []float64 `json:"weights"`
	ExpectedReturn float64   `json:"expected_return"`
	Volatility     float64   `json:"volatility"`
	SharpeRatio    float64   `json:"sharpe_ratio"`

	// Converged reports whether the iterative solver reached its tolerance.
	// Closed-form solutions always set it.
	Converged bool `json:"converged"`
}

// Validate checks the allocation invariants: weights sum to 1 within
// WeightSumTolerance, and no weight is meaningfully negative when longOnly.
func (a Allocation) Validate(longOnly bool) error {
	if len(a.Assets) != len(a.Weights) {
		return fmt.Errorf("allocation: %d assets but %d weights: %w", len(a.Assets), len(a.Weights), formulas.ErrMismatchedSeries)
	}

	sum := 0.0
	for i, w := range a.Weights {
		if longOnly && w < -longOnlyTolerance {
			return fmt.Errorf("allocation: negative weight %v for %s under long-only: %w", w, a.Assets[i], formulas.ErrInvalidParameter)
		}
		sum += w
	}

	if math.Abs(sum-1.0) > WeightSumTolerance {
		return fmt.Errorf("allocation: weights sum to %v, expected 1: %w", sum, formulas.ErrInvalidParameter)
	}

	return nil
}

// Weight returns the weight for one asset, or 0 when the asset is absent.
func (a Allocation) Weight(asset string) float64 {
	for i, name := range a.Assets {
		if name == asset {
			return a.Weights[i]
		}
	}
	return 0
}
