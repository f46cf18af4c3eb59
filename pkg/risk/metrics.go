package risk

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/riskengine/pkg/formulas"
)

// SharpeRatio calculates excess return per unit of volatility.
//
// The periodic mean is annualized by periodsPerYear and the periodic
// standard deviation by sqrt(periodsPerYear):
//
//	(mean*P - riskFreeRate) / (stddev*sqrt(P))
//
// The two factors do not cancel; an un-annualized ratio would understate
// the numerator by sqrt(P). riskFreeRate is annualized.
func SharpeRatio(returns []float64, riskFreeRate, periodsPerYear float64) (float64, error) {
	if len(returns) == 0 {
		return 0, fmt.Errorf("sharpe: %w", formulas.ErrEmptyInput)
	}
	if periodsPerYear <= 0 {
		return 0, fmt.Errorf("sharpe: periodsPerYear must be positive, got %v: %w", periodsPerYear, formulas.ErrInvalidParameter)
	}

	vol, err := formulas.AnnualizedVolatility(returns, periodsPerYear)
	if err != nil {
		return 0, fmt.Errorf("sharpe: %w", err)
	}
	if vol == 0 {
		return 0, fmt.Errorf("sharpe: zero volatility: %w", formulas.ErrDegenerateInput)
	}

	annualizedMean := stat.Mean(returns, nil) * periodsPerYear
	return (annualizedMean - riskFreeRate) / vol, nil
}

// SortinoRatio is the Sharpe numerator divided by downside deviation, the
// sample standard deviation of the negative returns only. Fails with
// ErrDegenerateInput when fewer than two negative returns exist.
func SortinoRatio(returns []float64, riskFreeRate, periodsPerYear float64) (float64, error) {
	if len(returns) == 0 {
		return 0, fmt.Errorf("sortino: %w", formulas.ErrEmptyInput)
	}
	if periodsPerYear <= 0 {
		return 0, fmt.Errorf("sortino: periodsPerYear must be positive, got %v: %w", periodsPerYear, formulas.ErrInvalidParameter)
	}

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		return 0, fmt.Errorf("sortino: %d negative returns, downside deviation undefined: %w", len(downside), formulas.ErrDegenerateInput)
	}

	downsideDev := stat.StdDev(downside, nil) * math.Sqrt(periodsPerYear)
	if downsideDev == 0 {
		return 0, fmt.Errorf("sortino: zero downside deviation: %w", formulas.ErrDegenerateInput)
	}

	annualizedMean := stat.Mean(returns, nil) * periodsPerYear
	return (annualizedMean - riskFreeRate) / downsideDev, nil
}

// MaxDrawdown returns the maximum peak-to-trough decline of a price (or
// cumulative value) series as a non-negative fraction. Series shorter than
// two points have no drawdown and return 0.
func MaxDrawdown(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}

	maxDrawdown := 0.0
	peak := prices[0]
	for _, p := range prices[1:] {
		if p > peak {
			peak = p
		}
		drawdown := (peak - p) / peak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}

	return maxDrawdown
}

// MaxDrawdownFromReturns compounds the returns into a cumulative value
// series (starting at 1.0) and returns its maximum drawdown.
func MaxDrawdownFromReturns(returns []float64) (float64, error) {
	if len(returns) == 0 {
		return 0, fmt.Errorf("max drawdown: %w", formulas.ErrEmptyInput)
	}

	values, err := formulas.PricesFromReturns(returns, 1.0)
	if err != nil {
		return 0, fmt.Errorf("max drawdown: %w", err)
	}
	return MaxDrawdown(values), nil
}

// CalmarRatio divides the annualized compounded return by the maximum
// drawdown. A series with zero drawdown returns 0, not an error.
func CalmarRatio(returns []float64, periodsPerYear float64) (float64, error) {
	annualized, err := formulas.AnnualReturn(returns, periodsPerYear)
	if err != nil {
		return 0, fmt.Errorf("calmar: %w", err)
	}

	maxDD, err := MaxDrawdownFromReturns(returns)
	if err != nil {
		return 0, fmt.Errorf("calmar: %w", err)
	}
	if maxDD == 0 {
		return 0, nil
	}

	return annualized / maxDD, nil
}

// Beta measures an asset's sensitivity to market moves:
// cov(asset, market) / var(market).
func Beta(assetReturns, marketReturns []float64) (float64, error) {
	cov, err := formulas.Covariance(assetReturns, marketReturns)
	if err != nil {
		return 0, fmt.Errorf("beta: %w", err)
	}

	marketVar := stat.Variance(marketReturns, nil)
	if marketVar == 0 {
		return 0, fmt.Errorf("beta: zero market variance: %w", formulas.ErrDegenerateInput)
	}

	return cov / marketVar, nil
}

// TrackingError is the annualized standard deviation of the difference
// between portfolio and benchmark returns.
func TrackingError(portfolioReturns, benchmarkReturns []float64, periodsPerYear float64) (float64, error) {
	excess, err := excessReturns(portfolioReturns, benchmarkReturns)
	if err != nil {
		return 0, fmt.Errorf("tracking error: %w", err)
	}

	te, err := formulas.AnnualizedVolatility(excess, periodsPerYear)
	if err != nil {
		return 0, fmt.Errorf("tracking error: %w", err)
	}
	return te, nil
}

// InformationRatio is the annualized mean excess return over the benchmark
// divided by the tracking error.
func InformationRatio(portfolioReturns, benchmarkReturns []float64, periodsPerYear float64) (float64, error) {
	excess, err := excessReturns(portfolioReturns, benchmarkReturns)
	if err != nil {
		return 0, fmt.Errorf("information ratio: %w", err)
	}

	te, err := formulas.AnnualizedVolatility(excess, periodsPerYear)
	if err != nil {
		return 0, fmt.Errorf("information ratio: %w", err)
	}
	if te == 0 {
		return 0, fmt.Errorf("information ratio: zero tracking error: %w", formulas.ErrDegenerateInput)
	}

	annualizedExcess := stat.Mean(excess, nil) * periodsPerYear
	return annualizedExcess / te, nil
}

func excessReturns(portfolio, benchmark []float64) ([]float64, error) {
	if len(portfolio) != len(benchmark) {
		return nil, fmt.Errorf("len(portfolio)=%d len(benchmark)=%d: %w", len(portfolio), len(benchmark), formulas.ErrMismatchedSeries)
	}
	if len(portfolio) == 0 {
		return nil, formulas.ErrEmptyInput
	}

	excess := make([]float64, len(portfolio))
	for i := range portfolio {
		excess[i] = portfolio[i] - benchmark[i]
	}
	return excess, nil
}
