// Package sizing computes capital allocations for new trades: Kelly
// criterion, fixed-fractional, volatility-targeted, VaR-constrained and
// risk-parity sizing. Every function is a pure transformation of scalar
// inputs; invalid parameters fail with a typed error rather than a silent
// default.
package sizing

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/riskengine/pkg/formulas"
)

// ErrInvalidStop is returned when entry and stop price coincide, making the
// risk per unit undefined.
var ErrInvalidStop = errors.New("entry price equals stop price")

// KellyFraction returns the growth-optimal fraction of capital to risk:
//
//	f* = winRate - (1-winRate)/payoffRatio, payoffRatio = avgWin/avgLoss
//
// The raw signed value is returned; a negative result means the bet has no
// edge and callers that cannot short clamp it to zero themselves.
func KellyFraction(winRate, avgWin, avgLoss float64) (float64, error) {
	if winRate < 0 || winRate > 1 {
		return 0, fmt.Errorf("kelly: win rate %v outside [0, 1]: %w", winRate, formulas.ErrInvalidParameter)
	}
	if avgWin <= 0 || avgLoss <= 0 {
		return 0, fmt.Errorf("kelly: average win %v and loss %v must be positive: %w", avgWin, avgLoss, formulas.ErrInvalidParameter)
	}

	payoffRatio := avgWin / avgLoss
	return winRate - (1-winRate)/payoffRatio, nil
}

// KellyPosition converts the Kelly fraction into a capital amount. A
// negative fraction (no edge) yields zero since a position value cannot go
// below nothing.
func KellyPosition(capital, winRate, avgWin, avgLoss float64) (float64, error) {
	if err := checkCapital(capital); err != nil {
		return 0, fmt.Errorf("kelly position: %w", err)
	}

	fraction, err := KellyFraction(winRate, avgWin, avgLoss)
	if err != nil {
		return 0, fmt.Errorf("kelly position: %w", err)
	}
	if fraction < 0 {
		return 0, nil
	}

	return capital * fraction, nil
}

// FractionalKelly scales the Kelly position by a multiplier in (0, 1],
// the standard guard against estimation error in the inputs.
func FractionalKelly(capital, winRate, avgWin, avgLoss, fraction float64) (float64, error) {
	if fraction <= 0 || fraction > 1 {
		return 0, fmt.Errorf("fractional kelly: multiplier %v outside (0, 1]: %w", fraction, formulas.ErrInvalidParameter)
	}

	full, err := KellyPosition(capital, winRate, avgWin, avgLoss)
	if err != nil {
		return 0, fmt.Errorf("fractional kelly: %w", err)
	}

	return full * fraction, nil
}

// FixedFractional sizes a position so the loss from entry to stop equals
// capital*riskFraction:
//
//	size = capital * riskFraction / |entryPrice - stopPrice|
//
// The result is a position value; divide by entryPrice for a share count.
func FixedFractional(capital, riskFraction, entryPrice, stopPrice float64) (float64, error) {
	if err := checkCapital(capital); err != nil {
		return 0, fmt.Errorf("fixed fractional: %w", err)
	}
	if err := checkRiskFraction(riskFraction); err != nil {
		return 0, fmt.Errorf("fixed fractional: %w", err)
	}
	if entryPrice <= 0 || stopPrice <= 0 {
		return 0, fmt.Errorf("fixed fractional: prices must be positive: %w", formulas.ErrInvalidParameter)
	}
	if entryPrice == stopPrice {
		return 0, fmt.Errorf("fixed fractional: %w", ErrInvalidStop)
	}

	riskPerUnit := math.Abs(entryPrice - stopPrice)
	return capital * riskFraction / riskPerUnit, nil
}

// VolatilityTarget allocates the fraction targetVolatility/assetVolatility
// of capital, capped at 1 so the position never exceeds the capital.
func VolatilityTarget(capital, targetVolatility, assetVolatility float64) (float64, error) {
	if err := checkCapital(capital); err != nil {
		return 0, fmt.Errorf("volatility target: %w", err)
	}
	if targetVolatility <= 0 || assetVolatility <= 0 {
		return 0, fmt.Errorf("volatility target: volatilities must be positive: %w", formulas.ErrInvalidParameter)
	}

	fraction := targetVolatility / assetVolatility
	if fraction > 1 {
		fraction = 1
	}
	return capital * fraction, nil
}

// VolatilityTargetWithCorrelation reduces the volatility-targeted size when
// the asset is positively correlated with existing holdings, by the factor
// 1/(1+rho) for rho > 0. Negative correlation leaves the size unchanged.
func VolatilityTargetWithCorrelation(capital, targetVolatility, assetVolatility, correlation float64) (float64, error) {
	if correlation < -1 || correlation > 1 {
		return 0, fmt.Errorf("volatility target: correlation %v outside [-1, 1]: %w", correlation, formulas.ErrInvalidParameter)
	}

	base, err := VolatilityTarget(capital, targetVolatility, assetVolatility)
	if err != nil {
		return 0, err
	}

	if correlation > 0 {
		base /= 1 + correlation
	}
	return base, nil
}

// VaRConstrained sizes the position so its VaR stays within the risk
// budget: size = capital * maxAcceptableVaR / |assetVaR|. VaR magnitudes
// may be passed as positive losses or negative returns.
func VaRConstrained(capital, maxAcceptableVaR, assetVaR float64) (float64, error) {
	if err := checkCapital(capital); err != nil {
		return 0, fmt.Errorf("var constrained: %w", err)
	}
	if maxAcceptableVaR <= 0 {
		return 0, fmt.Errorf("var constrained: risk budget %v must be positive: %w", maxAcceptableVaR, formulas.ErrInvalidParameter)
	}
	if assetVaR == 0 {
		return 0, fmt.Errorf("var constrained: zero asset VaR: %w", formulas.ErrDegenerateInput)
	}

	return capital * maxAcceptableVaR / math.Abs(assetVaR), nil
}

// RiskParity allocates capital inversely proportional to each asset's
// volatility, normalized to sum to the total capital.
func RiskParity(capital float64, volatilities []float64) ([]float64, error) {
	if err := checkCapital(capital); err != nil {
		return nil, fmt.Errorf("risk parity: %w", err)
	}
	if len(volatilities) == 0 {
		return nil, fmt.Errorf("risk parity: %w", formulas.ErrEmptyInput)
	}

	inverse := make([]float64, len(volatilities))
	total := 0.0
	for i, vol := range volatilities {
		if vol <= 0 {
			return nil, fmt.Errorf("risk parity: non-positive volatility %v at index %d: %w", vol, i, formulas.ErrInvalidParameter)
		}
		inverse[i] = 1 / vol
		total += inverse[i]
	}

	sizes := make([]float64, len(volatilities))
	for i := range sizes {
		sizes[i] = capital * inverse[i] / total
	}
	return sizes, nil
}

// RiskParityWithCorrelation allocates capital inversely proportional to
// each asset's marginal risk contribution under the given correlation
// matrix, evaluated at equal weights: marginal_i = (Sigma w)_i with
// Sigma_ij = rho_ij * sigma_i * sigma_j.
func RiskParityWithCorrelation(capital float64, volatilities []float64, correlations [][]float64) ([]float64, error) {
	if err := checkCapital(capital); err != nil {
		return nil, fmt.Errorf("risk parity: %w", err)
	}
	n := len(volatilities)
	if n == 0 {
		return nil, fmt.Errorf("risk parity: %w", formulas.ErrEmptyInput)
	}
	if len(correlations) != n {
		return nil, fmt.Errorf("risk parity: correlation matrix size %d for %d assets: %w", len(correlations), n, formulas.ErrMismatchedSeries)
	}

	for i, vol := range volatilities {
		if vol <= 0 {
			return nil, fmt.Errorf("risk parity: non-positive volatility %v at index %d: %w", vol, i, formulas.ErrInvalidParameter)
		}
		if len(correlations[i]) != n {
			return nil, fmt.Errorf("risk parity: correlation row %d has %d entries: %w", i, len(correlations[i]), formulas.ErrMismatchedSeries)
		}
	}

	equalWeight := 1.0 / float64(n)
	inverse := make([]float64, n)
	total := 0.0
	for i := 0; i < n; i++ {
		var marginal float64
		for j := 0; j < n; j++ {
			marginal += correlations[i][j] * volatilities[i] * volatilities[j] * equalWeight
		}
		if marginal <= 0 {
			return nil, fmt.Errorf("risk parity: non-positive marginal risk at index %d: %w", i, formulas.ErrDegenerateInput)
		}
		inverse[i] = 1 / marginal
		total += inverse[i]
	}

	sizes := make([]float64, n)
	for i := range sizes {
		sizes[i] = capital * inverse[i] / total
	}
	return sizes, nil
}

// AdaptiveSize scales the base risk fraction by recent performance: the
// mean of the recent returns shifts the factor around 1, clamped to
// [0.5, 1.5], so winning streaks size up and losing streaks size down.
func AdaptiveSize(capital float64, recentReturns []float64, baseRisk float64) (float64, error) {
	if err := checkCapital(capital); err != nil {
		return 0, fmt.Errorf("adaptive size: %w", err)
	}
	if err := checkRiskFraction(baseRisk); err != nil {
		return 0, fmt.Errorf("adaptive size: %w", err)
	}
	if len(recentReturns) == 0 {
		return 0, fmt.Errorf("adaptive size: %w", formulas.ErrEmptyInput)
	}

	factor := 1 + 10*stat.Mean(recentReturns, nil)
	if factor < 0.5 {
		factor = 0.5
	}
	if factor > 1.5 {
		factor = 1.5
	}

	size := capital * baseRisk * factor
	if size > capital {
		size = capital
	}
	return size, nil
}

// DrawdownAdjusted reduces the base position size linearly as the current
// drawdown approaches the maximum allowed drawdown, reaching zero at the
// limit.
func DrawdownAdjusted(capital, baseRisk, currentDrawdown, maxDrawdown float64) (float64, error) {
	if err := checkCapital(capital); err != nil {
		return 0, fmt.Errorf("drawdown adjusted: %w", err)
	}
	if err := checkRiskFraction(baseRisk); err != nil {
		return 0, fmt.Errorf("drawdown adjusted: %w", err)
	}
	if maxDrawdown <= 0 || maxDrawdown > 1 {
		return 0, fmt.Errorf("drawdown adjusted: max drawdown %v outside (0, 1]: %w", maxDrawdown, formulas.ErrInvalidParameter)
	}
	if currentDrawdown < 0 {
		return 0, fmt.Errorf("drawdown adjusted: negative current drawdown %v: %w", currentDrawdown, formulas.ErrInvalidParameter)
	}

	if currentDrawdown >= maxDrawdown {
		return 0, nil
	}

	return capital * baseRisk * (1 - currentDrawdown/maxDrawdown), nil
}

func checkCapital(capital float64) error {
	if capital <= 0 {
		return fmt.Errorf("capital %v must be positive: %w", capital, formulas.ErrInvalidParameter)
	}
	return nil
}

func checkRiskFraction(fraction float64) error {
	if fraction <= 0 || fraction > 1 {
		return fmt.Errorf("risk fraction %v outside (0, 1]: %w", fraction, formulas.ErrInvalidParameter)
	}
	return nil
}
