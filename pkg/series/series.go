// Package series defines the value types consumed by the risk, portfolio
// and sizing packages: return series, price series and aligned universes.
// All types are immutable once constructed; accessors return copies so
// callers cannot alias internal state.
package series

import (
	"fmt"

	"github.com/aristath/riskengine/pkg/formulas"
)

// ReturnSeries is an ordered sequence of periodic fractional returns
// (0.012 = +1.2%). Insertion order is chronological order.
type ReturnSeries struct {
	values []float64
}

// NewReturnSeries constructs a ReturnSeries from periodic returns.
// The input slice is copied.
func NewReturnSeries(returns []float64) (ReturnSeries, error) {
	if len(returns) == 0 {
		return ReturnSeries{}, fmt.Errorf("return series: %w", formulas.ErrEmptyInput)
	}
	values := make([]float64, len(returns))
	copy(values, returns)
	return ReturnSeries{values: values}, nil
}

// Len returns the number of periods in the series.
func (rs ReturnSeries) Len() int {
	return len(rs.values)
}

// Values returns a copy of the underlying returns.
func (rs ReturnSeries) Values() []float64 {
	out := make([]float64, len(rs.values))
	copy(out, rs.values)
	return out
}

// PriceSeries is an ordered sequence of strictly positive prices in
// chronological order.
type PriceSeries struct {
	values []float64
}

// NewPriceSeries constructs a PriceSeries. Every price must be strictly
// positive. The input slice is copied.
func NewPriceSeries(prices []float64) (PriceSeries, error) {
	if len(prices) == 0 {
		return PriceSeries{}, fmt.Errorf("price series: %w", formulas.ErrEmptyInput)
	}
	for i, p := range prices {
		if p <= 0 {
			return PriceSeries{}, fmt.Errorf("price series: non-positive price %v at index %d: %w", p, i, formulas.ErrInvalidParameter)
		}
	}
	values := make([]float64, len(prices))
	copy(values, prices)
	return PriceSeries{values: values}, nil
}

// Len returns the number of prices in the series.
func (ps PriceSeries) Len() int {
	return len(ps.values)
}

// Values returns a copy of the underlying prices.
func (ps PriceSeries) Values() []float64 {
	out := make([]float64, len(ps.values))
	copy(out, ps.values)
	return out
}

// Returns converts the price series to a ReturnSeries via
// r[i] = p[i+1]/p[i] - 1. Requires at least two prices.
func (ps PriceSeries) Returns() (ReturnSeries, error) {
	returns, err := formulas.ReturnsFromPrices(ps.values)
	if err != nil {
		return ReturnSeries{}, err
	}
	return ReturnSeries{values: returns}, nil
}

// AssetUniverse maps asset identifiers to aligned return series. All series
// share the same period count; the constructor rejects misaligned input.
type AssetUniverse struct {
	assets  []string
	returns map[string][]float64
	periods int
}

// NewAssetUniverse builds a universe from ordered asset identifiers and
// their return series. Every series must have the same length, every asset
// must appear exactly once, and every asset must have a series.
func NewAssetUniverse(assets []string, returns map[string]ReturnSeries) (AssetUniverse, error) {
	if len(assets) == 0 {
		return AssetUniverse{}, fmt.Errorf("universe: %w", formulas.ErrEmptyInput)
	}

	seen := make(map[string]bool, len(assets))
	data := make(map[string][]float64, len(assets))
	periods := 0

	for _, asset := range assets {
		if seen[asset] {
			return AssetUniverse{}, fmt.Errorf("universe: duplicate asset %q: %w", asset, formulas.ErrInvalidParameter)
		}
		seen[asset] = true

		rs, ok := returns[asset]
		if !ok {
			return AssetUniverse{}, fmt.Errorf("universe: missing return series for asset %q: %w", asset, formulas.ErrEmptyInput)
		}
		if periods == 0 {
			periods = rs.Len()
		}
		if rs.Len() != periods {
			return AssetUniverse{}, fmt.Errorf("universe: asset %q has %d periods, expected %d: %w", asset, rs.Len(), periods, formulas.ErrMismatchedSeries)
		}
		data[asset] = rs.Values()
	}

	ordered := make([]string, len(assets))
	copy(ordered, assets)

	return AssetUniverse{assets: ordered, returns: data, periods: periods}, nil
}

// Assets returns the ordered asset identifiers.
func (u AssetUniverse) Assets() []string {
	out := make([]string, len(u.assets))
	copy(out, u.assets)
	return out
}

// NumAssets returns the number of assets in the universe.
func (u AssetUniverse) NumAssets() int {
	return len(u.assets)
}

// Periods returns the shared period count of the aligned series.
func (u AssetUniverse) Periods() int {
	return u.periods
}

// Returns returns a copy of the return series for one asset.
func (u AssetUniverse) Returns(asset string) ([]float64, bool) {
	r, ok := u.returns[asset]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(r))
	copy(out, r)
	return out, true
}

// ReturnsMatrix returns the returns laid out as one row per asset, in
// universe asset order.
func (u AssetUniverse) ReturnsMatrix() [][]float64 {
	rows := make([][]float64, len(u.assets))
	for i, asset := range u.assets {
		r := u.returns[asset]
		row := make([]float64, len(r))
		copy(row, r)
		rows[i] = row
	}
	return rows
}
