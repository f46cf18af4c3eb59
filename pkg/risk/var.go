// Package risk computes risk metrics from return and price series: Value
// at Risk, Expected Shortfall, volatility-adjusted performance ratios,
// drawdown statistics and benchmark-relative measures. All functions are
// pure transformations; the package holds no state.
package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/riskengine/pkg/formulas"
)

// ErrInvalidConfidence is returned when a confidence level lies outside (0, 1).
var ErrInvalidConfidence = errors.New("confidence level outside (0, 1)")

// VaRMethod selects the Value-at-Risk estimation method.
type VaRMethod string

const (
	VaRHistorical VaRMethod = "historical"
	VaRParametric VaRMethod = "parametric"
	VaRMonteCarlo VaRMethod = "monte_carlo"
)

// DefaultMonteCarloSamples is the sample count used when MonteCarloOptions
// does not specify one.
const DefaultMonteCarloSamples = 10000

// Rander draws one simulated periodic return. distuv distributions satisfy it.
type Rander interface {
	Rand() float64
}

// MonteCarloOptions tunes Monte-Carlo VaR. The sample count is the only
// cost knob in this package; callers bound it to cap latency.
type MonteCarloOptions struct {
	// Samples is the number of simulated returns. Defaults to
	// DefaultMonteCarloSamples when <= 0.
	Samples int

	// Source overrides the fitted sampling distribution. When nil a normal
	// distribution is fitted to the observed mean and standard deviation.
	Source Rander
}

// VaR calculates Value at Risk for the given confidence level using the
// selected method. The result is the loss quantile expressed as a
// (typically negative) periodic return. Monte-Carlo uses default options;
// use MonteCarloVaR directly to tune them.
func VaR(returns []float64, confidence float64, method VaRMethod) (float64, error) {
	switch method {
	case VaRHistorical:
		return HistoricalVaR(returns, confidence)
	case VaRParametric:
		return ParametricVaR(returns, confidence)
	case VaRMonteCarlo:
		return MonteCarloVaR(returns, confidence, MonteCarloOptions{})
	default:
		return 0, fmt.Errorf("var: unknown method %q: %w", method, formulas.ErrInvalidParameter)
	}
}

// HistoricalVaR returns the interpolated (1-confidence)*100 percentile of
// the observed returns. A single-observation series is defined to return
// that observation.
func HistoricalVaR(returns []float64, confidence float64) (float64, error) {
	if len(returns) == 0 {
		return 0, fmt.Errorf("historical var: %w", formulas.ErrEmptyInput)
	}
	if err := checkConfidence(confidence); err != nil {
		return 0, fmt.Errorf("historical var: %w", err)
	}

	return formulas.Percentile(returns, (1.0-confidence)*100.0)
}

// ParametricVaR returns mu + z*sigma where z is the standard-normal inverse
// CDF at (1-confidence). The quantile function supports arbitrary
// confidence levels. Requires at least two observations for sigma.
func ParametricVaR(returns []float64, confidence float64) (float64, error) {
	if len(returns) == 0 {
		return 0, fmt.Errorf("parametric var: %w", formulas.ErrEmptyInput)
	}
	if err := checkConfidence(confidence); err != nil {
		return 0, fmt.Errorf("parametric var: %w", err)
	}

	sigma, err := formulas.StdDev(returns)
	if err != nil {
		return 0, fmt.Errorf("parametric var: %w", err)
	}
	mu := stat.Mean(returns, nil)

	z := distuv.UnitNormal.Quantile(1.0 - confidence)
	return mu + z*sigma, nil
}

// MonteCarloVaR simulates returns from a fitted distribution (normal unless
// opts.Source overrides it) and applies the historical method to the
// simulated sample.
func MonteCarloVaR(returns []float64, confidence float64, opts MonteCarloOptions) (float64, error) {
	if len(returns) == 0 {
		return 0, fmt.Errorf("monte carlo var: %w", formulas.ErrEmptyInput)
	}
	if err := checkConfidence(confidence); err != nil {
		return 0, fmt.Errorf("monte carlo var: %w", err)
	}

	samples := opts.Samples
	if samples <= 0 {
		samples = DefaultMonteCarloSamples
	}

	source := opts.Source
	if source == nil {
		sigma, err := formulas.StdDev(returns)
		if err != nil {
			return 0, fmt.Errorf("monte carlo var: %w", err)
		}
		source = distuv.Normal{
			Mu:    stat.Mean(returns, nil),
			Sigma: sigma,
		}
	}

	simulated := make([]float64, samples)
	for i := range simulated {
		simulated[i] = source.Rand()
	}

	return HistoricalVaR(simulated, confidence)
}

// ExpectedShortfall (CVaR) is the average of the returns at or below the
// historical VaR cutoff index k = floor((1-confidence)*n). When k is zero
// the single worst observation is returned.
func ExpectedShortfall(returns []float64, confidence float64) (float64, error) {
	if len(returns) == 0 {
		return 0, fmt.Errorf("expected shortfall: %w", formulas.ErrEmptyInput)
	}
	if err := checkConfidence(confidence); err != nil {
		return 0, fmt.Errorf("expected shortfall: %w", err)
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	// The epsilon keeps round confidence levels from truncating a tail
	// observation: 1-0.90 is slightly below 0.1 in floating point, which
	// would floor (1-c)*n one short of the intended cutoff.
	cutoff := int(math.Floor((1.0-confidence)*float64(len(sorted)) + 1e-9))
	if cutoff == 0 {
		return sorted[0], nil
	}

	sum := 0.0
	for _, r := range sorted[:cutoff] {
		sum += r
	}
	return sum / float64(cutoff), nil
}

func checkConfidence(confidence float64) error {
	if confidence <= 0 || confidence >= 1 {
		return fmt.Errorf("got %v: %w", confidence, ErrInvalidConfidence)
	}
	return nil
}
