package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReturnsFromPrices(t *testing.T) {
	t.Run("simple returns", func(t *testing.T) {
		got, err := ReturnsFromPrices([]float64{100, 110, 99})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.InDelta(t, 0.10, got[0], 1e-12)
		assert.InDelta(t, -0.10, got[1], 1e-12)
	})

	t.Run("single price fails", func(t *testing.T) {
		_, err := ReturnsFromPrices([]float64{100})
		assert.ErrorIs(t, err, ErrInsufficientData)
	})

	t.Run("non-positive price fails", func(t *testing.T) {
		_, err := ReturnsFromPrices([]float64{100, 0, 110})
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
}

func TestPricesFromReturnsRoundTrip(t *testing.T) {
	prices := []float64{100, 105.5, 103.2, 108.9, 110.1}

	returns, err := ReturnsFromPrices(prices)
	require.NoError(t, err)

	rebuilt, err := PricesFromReturns(returns, prices[0])
	require.NoError(t, err)

	require.Len(t, rebuilt, len(prices))
	for i := range prices {
		assert.InDelta(t, prices[i], rebuilt[i], 1e-9)
	}
}

func TestPricesFromReturnsInvalidStart(t *testing.T) {
	_, err := PricesFromReturns([]float64{0.01}, 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestAnnualReturn(t *testing.T) {
	t.Run("one year of constant daily returns", func(t *testing.T) {
		returns := make([]float64, 252)
		for i := range returns {
			returns[i] = 0.001
		}

		got, err := AnnualReturn(returns, 252)
		require.NoError(t, err)
		assert.InDelta(t, math.Pow(1.001, 252)-1, got, 1e-12)
	})

	t.Run("half year compounds up", func(t *testing.T) {
		returns := make([]float64, 126)
		for i := range returns {
			returns[i] = 0.001
		}

		got, err := AnnualReturn(returns, 252)
		require.NoError(t, err)
		assert.InDelta(t, math.Pow(1.001, 252)-1, got, 1e-9)
	})

	t.Run("very short series stays cumulative", func(t *testing.T) {
		got, err := AnnualReturn([]float64{0.1, 0.1}, 252)
		require.NoError(t, err)
		assert.InDelta(t, 0.21, got, 1e-12)
	})

	t.Run("empty input fails", func(t *testing.T) {
		_, err := AnnualReturn(nil, 252)
		assert.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("invalid annualization base fails", func(t *testing.T) {
		_, err := AnnualReturn([]float64{0.01}, 0)
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
}

func TestAnnualizedVolatility(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.01, -0.01}

	got, err := AnnualizedVolatility(returns, 252)
	require.NoError(t, err)

	// Sample variance of the alternating series is 4e-4/3.
	expected := math.Sqrt(0.0004/3.0) * math.Sqrt(252)
	assert.InDelta(t, expected, got, 1e-12)

	_, err = AnnualizedVolatility([]float64{0.01}, 252)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = AnnualizedVolatility(returns, -1)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
