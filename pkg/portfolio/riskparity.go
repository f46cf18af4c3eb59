package portfolio

import (
	"fmt"
	"math"

	"github.com/aristath/riskengine/pkg/formulas"
	"github.com/aristath/riskengine/pkg/series"
)

// RiskParity finds weights such that every asset contributes equally to
// portfolio risk: w_i * (Sigma w)_i equal across assets.
//
// The solve is a multiplicative fixed-point iteration started from
// inverse-volatility weights: each step scales w_i by
// sqrt(targetContribution / contribution_i) and renormalizes. When the
// relative contribution spread stays above the configured tolerance after
// the bounded iteration count, the inverse-volatility weights are returned
// with Converged=false.
func (o *Optimizer) RiskParity(u series.AssetUniverse) (*Allocation, error) {
	m, err := o.buildModel(u)
	if err != nil {
		return nil, err
	}

	n := len(m.assets)
	weights := inverseVolatilityWeights(m.cov)
	if n == 1 {
		return o.allocationFor(m, weights, true), nil
	}

	initial := make([]float64, n)
	copy(initial, weights)

	converged := false
	for iter := 0; iter < o.cfg.RiskParityMaxIterations; iter++ {
		contributions := riskContributions(m.cov, weights)
		variance := sum(contributions)
		if variance <= 0 {
			break
		}
		target := variance / float64(n)

		maxDev := 0.0
		for _, rc := range contributions {
			dev := math.Abs(rc-target) / variance
			if dev > maxDev {
				maxDev = dev
			}
		}
		if maxDev < o.cfg.RiskParityTolerance {
			converged = true
			break
		}

		for i := range weights {
			if contributions[i] > 0 {
				weights[i] *= math.Sqrt(target / contributions[i])
			}
		}
		total := sum(weights)
		if total <= 0 {
			break
		}
		for i := range weights {
			weights[i] /= total
		}
	}

	if !converged {
		o.log.Warn().
			Int("max_iterations", o.cfg.RiskParityMaxIterations).
			Float64("tolerance", o.cfg.RiskParityTolerance).
			Msg("Risk parity did not converge, falling back to inverse-volatility weights")
		weights = initial
	}

	return o.allocationFor(m, weights, converged), nil
}

// RiskContributions returns each asset's absolute risk contribution
// w_i * (Sigma w)_i. The contributions sum to the portfolio variance.
func RiskContributions(cov [][]float64, weights []float64) ([]float64, error) {
	if len(cov) == 0 {
		return nil, fmt.Errorf("risk contributions: %w", ErrInsufficientAssets)
	}
	if len(cov) != len(weights) {
		return nil, fmt.Errorf("risk contributions: %d weights for %d assets: %w", len(weights), len(cov), formulas.ErrMismatchedSeries)
	}
	return riskContributions(cov, weights), nil
}

func riskContributions(cov [][]float64, weights []float64) []float64 {
	n := len(weights)
	contributions := make([]float64, n)
	for i := 0; i < n; i++ {
		var marginal float64
		for j := 0; j < n; j++ {
			marginal += cov[i][j] * weights[j]
		}
		contributions[i] = weights[i] * marginal
	}
	return contributions
}

// inverseVolatilityWeights allocates proportionally to 1/sigma_i, the
// canonical risk-parity starting point. Assets with non-positive variance
// get zero weight; all-degenerate input falls back to equal weights.
func inverseVolatilityWeights(cov [][]float64) []float64 {
	n := len(cov)
	weights := make([]float64, n)

	total := 0.0
	for i := 0; i < n; i++ {
		if cov[i][i] > 0 {
			weights[i] = 1.0 / math.Sqrt(cov[i][i])
			total += weights[i]
		}
	}

	if total == 0 {
		for i := range weights {
			weights[i] = 1.0 / float64(n)
		}
		return weights
	}

	for i := range weights {
		weights[i] /= total
	}
	return weights
}
