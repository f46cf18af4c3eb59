// Package stoploss computes exit prices for open positions: fixed,
// ATR-based, volatility-based and time-based stops, plus the trailing-stop
// state machine. The calculators are pure; TrailingStop is the one
// caller-owned mutable value.
package stoploss

import (
	"fmt"
	"math"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/aristath/riskengine/pkg/formulas"
)

// PositionType distinguishes long from short positions. Stops sit below
// entry for longs and above entry for shorts.
type PositionType int

const (
	Long PositionType = iota
	Short
)

func (p PositionType) String() string {
	if p == Short {
		return "short"
	}
	return "long"
}

// State is the lifecycle of a managed stop. Triggered and Expired are
// terminal.
type State int

const (
	Active State = iota
	Triggered
	Expired
)

// DefaultATRPeriod is the ATR lookback used when none is given.
const DefaultATRPeriod = 14

// Bar is one OHLC observation used for ATR stops.
type Bar struct {
	High  float64
	Low   float64
	Close float64
}

// FixedPercent computes a static percentage stop at entry:
// entry*(1-pct) for longs, entry*(1+pct) for shorts.
func FixedPercent(entryPrice, stopPct float64, side PositionType) (float64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("fixed percent stop: non-positive entry price %v: %w", entryPrice, formulas.ErrInvalidParameter)
	}
	if stopPct <= 0 || stopPct >= 1 {
		return 0, fmt.Errorf("fixed percent stop: percentage %v outside (0, 1): %w", stopPct, formulas.ErrInvalidParameter)
	}

	if side == Short {
		return entryPrice * (1 + stopPct), nil
	}
	return entryPrice * (1 - stopPct), nil
}

// FixedAmount computes a static dollar stop at entry: entry-amount for
// longs, entry+amount for shorts. The amount must leave a positive stop.
func FixedAmount(entryPrice, amount float64, side PositionType) (float64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("fixed amount stop: non-positive entry price %v: %w", entryPrice, formulas.ErrInvalidParameter)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("fixed amount stop: non-positive amount %v: %w", amount, formulas.ErrInvalidParameter)
	}

	if side == Short {
		return entryPrice + amount, nil
	}
	if amount >= entryPrice {
		return 0, fmt.Errorf("fixed amount stop: amount %v at or above entry %v: %w", amount, entryPrice, formulas.ErrInvalidParameter)
	}
	return entryPrice - amount, nil
}

// ATRStop computes entry -/+ multiplier*ATR(bars, period). The stop is
// fixed at entry; it is not updated afterwards, which distinguishes it
// from a trailing stop. A period <= 0 selects DefaultATRPeriod.
func ATRStop(entryPrice float64, bars []Bar, multiplier float64, side PositionType, period int) (float64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("atr stop: non-positive entry price %v: %w", entryPrice, formulas.ErrInvalidParameter)
	}
	if multiplier <= 0 {
		return 0, fmt.Errorf("atr stop: non-positive multiplier %v: %w", multiplier, formulas.ErrInvalidParameter)
	}
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if len(bars) <= period {
		return 0, fmt.Errorf("atr stop: need more than %d bars, got %d: %w", period, len(bars), formulas.ErrInsufficientData)
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		highs[i] = bar.High
		lows[i] = bar.Low
		closes[i] = bar.Close
	}

	atr := talib.Atr(highs, lows, closes, period)
	current := atr[len(atr)-1]
	if current <= 0 {
		return 0, fmt.Errorf("atr stop: degenerate ATR %v: %w", current, formulas.ErrDegenerateInput)
	}

	distance := multiplier * current
	if side == Short {
		return entryPrice + distance, nil
	}
	return entryPrice - distance, nil
}

// VolatilityStop places the stop multiplier periodic standard deviations
// away from entry, using the historical volatility of the price series'
// returns. Recompute as new prices arrive to keep the estimate current.
func VolatilityStop(entryPrice float64, prices []float64, multiplier float64, side PositionType) (float64, error) {
	sigma, err := historicalVolatility(prices)
	if err != nil {
		return 0, fmt.Errorf("volatility stop: %w", err)
	}
	return volatilityStopAt(entryPrice, sigma, multiplier, side)
}

// EWMAVolatilityStop is VolatilityStop with an exponentially weighted
// moving average variance estimate: v_t = lambda*v_{t-1} + (1-lambda)*r_t^2.
// The RiskMetrics lambda of 0.94 is used when lambda <= 0.
func EWMAVolatilityStop(entryPrice float64, prices []float64, multiplier float64, side PositionType, lambda float64) (float64, error) {
	if lambda <= 0 {
		lambda = 0.94
	}
	if lambda >= 1 {
		return 0, fmt.Errorf("ewma volatility stop: lambda %v outside (0, 1): %w", lambda, formulas.ErrInvalidParameter)
	}

	returns, err := formulas.ReturnsFromPrices(prices)
	if err != nil {
		return 0, fmt.Errorf("ewma volatility stop: %w", err)
	}

	variance := returns[0] * returns[0]
	for _, r := range returns[1:] {
		variance = lambda*variance + (1-lambda)*r*r
	}
	sigma := sqrtNonNeg(variance)
	if sigma == 0 {
		return 0, fmt.Errorf("ewma volatility stop: zero volatility: %w", formulas.ErrDegenerateInput)
	}

	return volatilityStopAt(entryPrice, sigma, multiplier, side)
}

// TimeStop returns the deadline after which a time-based stop expires.
func TimeStop(entryTime time.Time, duration time.Duration) (time.Time, error) {
	if duration <= 0 {
		return time.Time{}, fmt.Errorf("time stop: non-positive duration %v: %w", duration, formulas.ErrInvalidParameter)
	}
	return entryTime.Add(duration), nil
}

// TimeStopTriggered reports whether the evaluation time has passed the
// deadline. Time stops trigger independent of price.
func TimeStopTriggered(deadline, now time.Time) bool {
	return now.After(deadline)
}

// ProfitTargetReached reports whether price has reached the profit target
// in the favorable direction.
func ProfitTargetReached(target, currentPrice float64, side PositionType) bool {
	if side == Short {
		return currentPrice <= target
	}
	return currentPrice >= target
}

func volatilityStopAt(entryPrice, sigma, multiplier float64, side PositionType) (float64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("volatility stop: non-positive entry price %v: %w", entryPrice, formulas.ErrInvalidParameter)
	}
	if multiplier <= 0 {
		return 0, fmt.Errorf("volatility stop: non-positive multiplier %v: %w", multiplier, formulas.ErrInvalidParameter)
	}

	distance := multiplier * sigma * entryPrice
	if side == Short {
		return entryPrice + distance, nil
	}
	return entryPrice - distance, nil
}

func historicalVolatility(prices []float64) (float64, error) {
	returns, err := formulas.ReturnsFromPrices(prices)
	if err != nil {
		return 0, err
	}
	sigma, err := formulas.StdDev(returns)
	if err != nil {
		return 0, err
	}
	if sigma == 0 {
		return 0, fmt.Errorf("zero volatility: %w", formulas.ErrDegenerateInput)
	}
	return sigma, nil
}

func sqrtNonNeg(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
