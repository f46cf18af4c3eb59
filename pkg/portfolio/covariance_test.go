package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskengine/pkg/formulas"
	"github.com/aristath/riskengine/pkg/series"
)

func mustUniverse(t *testing.T, assets []string, data map[string][]float64) series.AssetUniverse {
	t.Helper()
	converted := make(map[string]series.ReturnSeries, len(data))
	for asset, values := range data {
		rs, err := series.NewReturnSeries(values)
		require.NoError(t, err)
		converted[asset] = rs
	}
	u, err := series.NewAssetUniverse(assets, converted)
	require.NoError(t, err)
	return u
}

func TestCovarianceMatrix(t *testing.T) {
	t.Run("leveraged pair", func(t *testing.T) {
		x := []float64{0.01, -0.02, 0.015, -0.005, 0.02}
		y := make([]float64, len(x))
		for i, r := range x {
			y[i] = 2 * r
		}
		u := mustUniverse(t, []string{"A", "B"}, map[string][]float64{"A": x, "B": y})

		cov, err := CovarianceMatrix(u)
		require.NoError(t, err)

		varX, err := formulas.Variance(x)
		require.NoError(t, err)

		assert.InDelta(t, varX, cov[0][0], 1e-12)
		assert.InDelta(t, 4*varX, cov[1][1], 1e-12)
		assert.InDelta(t, 2*varX, cov[0][1], 1e-12)
		assert.Equal(t, cov[0][1], cov[1][0])
	})

	t.Run("needs two periods", func(t *testing.T) {
		u := mustUniverse(t, []string{"A"}, map[string][]float64{"A": {0.01}})
		_, err := CovarianceMatrix(u)
		assert.ErrorIs(t, err, formulas.ErrInsufficientData)
	})
}

func TestEnsurePositiveDefinite(t *testing.T) {
	t.Run("well-conditioned matrix passes unchanged", func(t *testing.T) {
		cov := [][]float64{{0.04, 0.01}, {0.01, 0.09}}
		out, chol, err := EnsurePositiveDefinite(cov)
		require.NoError(t, err)
		require.NotNil(t, chol)
		assert.InDelta(t, 0.04, out[0][0], 1e-15)
		assert.InDelta(t, 0.01, out[0][1], 1e-15)
	})

	t.Run("singular matrix gets a ridge", func(t *testing.T) {
		// Rank one: two identical assets.
		cov := [][]float64{{0.04, 0.04}, {0.04, 0.04}}
		out, chol, err := EnsurePositiveDefinite(cov)
		require.NoError(t, err)
		require.NotNil(t, chol)
		assert.Greater(t, out[0][0], cov[0][0])
	})

	t.Run("indefinite matrix is rejected", func(t *testing.T) {
		// Eigenvalues 3 and -1; no small ridge fixes that.
		cov := [][]float64{{1, 2}, {2, 1}}
		_, _, err := EnsurePositiveDefinite(cov)
		assert.ErrorIs(t, err, ErrSingularCovariance)
	})

	t.Run("empty input", func(t *testing.T) {
		_, _, err := EnsurePositiveDefinite(nil)
		assert.ErrorIs(t, err, ErrInsufficientAssets)
	})
}

func TestShrinkCovariance(t *testing.T) {
	sample := [][]float64{{0.04, 0.01}, {0.01, 0.09}}

	shrunk, err := ShrinkCovariance(sample)
	require.NoError(t, err)

	// With two assets the default 0.2 intensity applies: diagonals move
	// towards the average variance 0.065, off-diagonals stay at the average
	// covariance they already equal.
	assert.InDelta(t, 0.8*0.04+0.2*0.065, shrunk[0][0], 1e-12)
	assert.InDelta(t, 0.8*0.09+0.2*0.065, shrunk[1][1], 1e-12)
	assert.InDelta(t, 0.01, shrunk[0][1], 1e-12)
	assert.Equal(t, shrunk[0][1], shrunk[1][0])

	_, err = ShrinkCovariance(nil)
	assert.ErrorIs(t, err, ErrInsufficientAssets)
}

func TestCorrelationMatrixFromCovariance(t *testing.T) {
	t.Run("normalizes by the standard deviations", func(t *testing.T) {
		cov := [][]float64{{4, 2}, {2, 9}}
		corr, err := CorrelationMatrixFromCovariance(cov)
		require.NoError(t, err)

		assert.Equal(t, 1.0, corr[0][0])
		assert.Equal(t, 1.0, corr[1][1])
		assert.InDelta(t, 2.0/6.0, corr[0][1], 1e-12)
		assert.Equal(t, corr[0][1], corr[1][0])
	})

	t.Run("rejects non-positive variance", func(t *testing.T) {
		_, err := CorrelationMatrixFromCovariance([][]float64{{0, 0}, {0, 1}})
		assert.ErrorIs(t, err, formulas.ErrDegenerateInput)
	})
}
