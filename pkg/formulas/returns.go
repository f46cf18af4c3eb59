package formulas

import (
	"fmt"
	"math"
)

// TradingDaysPerYear is the default annualization base for daily series.
const TradingDaysPerYear = 252

// ReturnsFromPrices converts a price series to simple periodic returns.
// Returns[i] = Price[i+1]/Price[i] - 1. All prices must be strictly positive.
func ReturnsFromPrices(prices []float64) ([]float64, error) {
	if len(prices) < 2 {
		return nil, fmt.Errorf("returns: need at least 2 prices, got %d: %w", len(prices), ErrInsufficientData)
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			return nil, fmt.Errorf("returns: non-positive price at index %d: %w", i, ErrInvalidParameter)
		}
		returns[i-1] = prices[i]/prices[i-1] - 1
	}

	return returns, nil
}

// PricesFromReturns reconstructs a price series from periodic returns and a
// starting price. The result has len(returns)+1 entries beginning at start.
func PricesFromReturns(returns []float64, start float64) ([]float64, error) {
	if start <= 0 {
		return nil, fmt.Errorf("prices: non-positive starting price %v: %w", start, ErrInvalidParameter)
	}

	prices := make([]float64, len(returns)+1)
	prices[0] = start
	for i, r := range returns {
		prices[i+1] = prices[i] * (1 + r)
	}

	return prices, nil
}

// AnnualReturn calculates the compound annual growth rate from periodic
// returns.
//
// Formula: ((1+r1)*(1+r2)*...*(1+rN))^(periodsPerYear/N) - 1
//
// Very short series (fewer than 3 periods) return the simple cumulative
// return to avoid extreme annualization.
func AnnualReturn(returns []float64, periodsPerYear float64) (float64, error) {
	if len(returns) == 0 {
		return 0, fmt.Errorf("annual return: %w", ErrEmptyInput)
	}
	if periodsPerYear <= 0 {
		return 0, fmt.Errorf("annual return: periodsPerYear must be positive, got %v: %w", periodsPerYear, ErrInvalidParameter)
	}

	cumulative := 1.0
	for _, r := range returns {
		cumulative *= (1 + r)
	}

	numPeriods := float64(len(returns))
	if numPeriods < 3 {
		return cumulative - 1, nil
	}

	years := numPeriods / periodsPerYear
	return math.Pow(cumulative, 1.0/years) - 1, nil
}

// AnnualizedVolatility calculates annualized volatility from periodic returns.
// Formula: sample std dev of returns * sqrt(periodsPerYear).
func AnnualizedVolatility(returns []float64, periodsPerYear float64) (float64, error) {
	if periodsPerYear <= 0 {
		return 0, fmt.Errorf("annualized volatility: periodsPerYear must be positive, got %v: %w", periodsPerYear, ErrInvalidParameter)
	}

	stdDev, err := StdDev(returns)
	if err != nil {
		return 0, fmt.Errorf("annualized volatility: %w", err)
	}

	return stdDev * math.Sqrt(periodsPerYear), nil
}
