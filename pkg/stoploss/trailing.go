package stoploss

import (
	"fmt"

	"github.com/aristath/riskengine/pkg/formulas"
)

// TrailingStop follows price in the favorable direction only. For a long
// position the stop ratchets up with new highs and never moves down; for a
// short it ratchets down with new lows and never moves up. A triggered
// stop is terminal and ignores further updates.
//
// Not safe for concurrent use; each position owns its own TrailingStop.
type TrailingStop struct {
	entryPrice float64
	trailPct   float64
	side       PositionType

	extremePrice float64
	stopPrice    float64
	state        State
}

// NewTrailingStop creates a trailing stop at entry. The initial extreme is
// the entry price and the initial stop sits trailPct away from it.
func NewTrailingStop(entryPrice, trailPct float64, side PositionType) (*TrailingStop, error) {
	if entryPrice <= 0 {
		return nil, fmt.Errorf("trailing stop: non-positive entry price %v: %w", entryPrice, formulas.ErrInvalidParameter)
	}
	if trailPct <= 0 || trailPct >= 1 {
		return nil, fmt.Errorf("trailing stop: trail percentage %v outside (0, 1): %w", trailPct, formulas.ErrInvalidParameter)
	}

	ts := &TrailingStop{
		entryPrice:   entryPrice,
		trailPct:     trailPct,
		side:         side,
		extremePrice: entryPrice,
		state:        Active,
	}
	ts.stopPrice = ts.stopFor(entryPrice)
	return ts, nil
}

// Update advances the stop with a new price. The extreme and the stop move
// only in the favorable direction; an adverse price leaves both unchanged.
// Updates after the stop has triggered are ignored.
func (ts *TrailingStop) Update(price float64) error {
	if price <= 0 {
		return fmt.Errorf("trailing stop: non-positive price %v: %w", price, formulas.ErrInvalidParameter)
	}
	if ts.state != Active {
		return nil
	}

	if ts.side == Short {
		if price < ts.extremePrice {
			ts.extremePrice = price
			ts.stopPrice = ts.stopFor(price)
		}
		return nil
	}

	if price > ts.extremePrice {
		ts.extremePrice = price
		ts.stopPrice = ts.stopFor(price)
	}
	return nil
}

// ShouldTrigger reports whether price has crossed the stop, and marks the
// stop Triggered when it has.
func (ts *TrailingStop) ShouldTrigger(price float64) bool {
	if ts.state == Triggered {
		return true
	}
	if ts.state != Active {
		return false
	}

	var crossed bool
	if ts.side == Short {
		crossed = price >= ts.stopPrice
	} else {
		crossed = price <= ts.stopPrice
	}

	if crossed {
		ts.state = Triggered
	}
	return crossed
}

// EntryPrice returns the position's entry price.
func (ts *TrailingStop) EntryPrice() float64 { return ts.entryPrice }

// ExtremePrice returns the most favorable price seen since entry.
func (ts *TrailingStop) ExtremePrice() float64 { return ts.extremePrice }

// StopPrice returns the current stop level.
func (ts *TrailingStop) StopPrice() float64 { return ts.stopPrice }

// Side returns the position direction the stop protects.
func (ts *TrailingStop) Side() PositionType { return ts.side }

// State returns the stop's lifecycle state.
func (ts *TrailingStop) State() State { return ts.state }

func (ts *TrailingStop) stopFor(extreme float64) float64 {
	if ts.side == Short {
		return extreme * (1 + ts.trailPct)
	}
	return extreme * (1 - ts.trailPct)
}
