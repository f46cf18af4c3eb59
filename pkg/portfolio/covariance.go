// Package portfolio constructs portfolio allocations from aligned asset
// universes: covariance models, minimum-variance and mean-variance
// optimization, maximum-Sharpe (tangency) portfolios, risk parity and
// efficient frontier sweeps.
package portfolio

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/riskengine/pkg/formulas"
	"github.com/aristath/riskengine/pkg/series"
)

var (
	// ErrInsufficientAssets is returned when a universe has no assets to optimize.
	ErrInsufficientAssets = errors.New("insufficient assets")

	// ErrSingularCovariance is returned when the covariance matrix stays
	// singular after ridge regularization.
	ErrSingularCovariance = errors.New("singular covariance matrix")

	// ErrInfeasibleTarget is returned when a target return lies outside the
	// range spanned by the single-asset expected returns.
	ErrInfeasibleTarget = errors.New("target return outside achievable range")
)

// CovarianceMatrix builds the sample covariance matrix of the universe's
// return series, in universe asset order. The matrix is symmetric by
// construction.
func CovarianceMatrix(u series.AssetUniverse) ([][]float64, error) {
	n := u.NumAssets()
	if n == 0 {
		return nil, fmt.Errorf("covariance matrix: %w", ErrInsufficientAssets)
	}
	if u.Periods() < 2 {
		return nil, fmt.Errorf("covariance matrix: need at least 2 periods, got %d: %w", u.Periods(), formulas.ErrInsufficientData)
	}

	rows := u.ReturnsMatrix()
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c, err := formulas.Covariance(rows[i], rows[j])
			if err != nil {
				return nil, fmt.Errorf("covariance matrix: %w", err)
			}
			cov[i][j] = c
			cov[j][i] = c
		}
	}

	return cov, nil
}

// EnsurePositiveDefinite validates that cov is positive definite via a
// Cholesky factorization, adding an escalating ridge term lambda*I when it
// is not. The returned matrix is the (possibly regularized) input; the
// factorization is returned for reuse in solves.
func EnsurePositiveDefinite(cov [][]float64) ([][]float64, *mat.Cholesky, error) {
	n := len(cov)
	if n == 0 {
		return nil, nil, fmt.Errorf("positive definite check: %w", ErrInsufficientAssets)
	}

	// Ridge escalation: 0 (as given), then 1e-10 up to 1e-4.
	lambdas := []float64{0, 1e-10, 1e-8, 1e-6, 1e-4}

	for _, lambda := range lambdas {
		sym := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := cov[i][j]
				if i == j {
					v += lambda
				}
				sym.SetSym(i, j, v)
			}
		}

		var chol mat.Cholesky
		if chol.Factorize(sym) {
			out := make([][]float64, n)
			for i := 0; i < n; i++ {
				out[i] = make([]float64, n)
				for j := 0; j < n; j++ {
					out[i][j] = sym.At(i, j)
				}
			}
			return out, &chol, nil
		}
	}

	return nil, nil, fmt.Errorf("positive definite check: regularization exhausted: %w", ErrSingularCovariance)
}

// ShrinkCovariance applies Ledoit-Wolf style shrinkage towards a
// constant-correlation target to improve conditioning with limited data.
//
// Reference: Ledoit, O., & Wolf, M. (2004). "A well-conditioned estimator
// for large-dimensional covariance matrices".
func ShrinkCovariance(sampleCov [][]float64) ([][]float64, error) {
	n := len(sampleCov)
	if n == 0 {
		return nil, fmt.Errorf("shrinkage: %w", ErrInsufficientAssets)
	}

	var avgVar, avgCov float64
	for i := 0; i < n; i++ {
		avgVar += sampleCov[i][i]
		for j := 0; j < n; j++ {
			if i != j {
				avgCov += sampleCov[i][j]
			}
		}
	}
	avgVar /= float64(n)
	if n > 1 {
		avgCov /= float64(n * (n - 1))
	}

	target := make([][]float64, n)
	for i := 0; i < n; i++ {
		target[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				target[i][j] = avgVar
			} else if avgVar > 0 {
				target[i][j] = avgCov
			}
		}
	}

	// Shrinkage intensity estimated from the dispersion of the sample
	// entries around the target, bounded to [0, 0.5].
	shrinkage := 0.2
	if n > 2 && avgVar > 0 {
		var sumSqDiff float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				diff := sampleCov[i][j] - target[i][j]
				sumSqDiff += diff * diff
			}
		}
		meanSqDiff := sumSqDiff / float64(n*n)

		var sum, sumSq float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				sum += sampleCov[i][j]
				sumSq += sampleCov[i][j] * sampleCov[i][j]
			}
		}
		meanSample := sum / float64(n*n)
		varSample := sumSq/float64(n*n) - meanSample*meanSample

		if varSample > 0 && meanSqDiff > 0 {
			s := varSample / (varSample + meanSqDiff)
			if s < 0 {
				s = 0
			}
			if s > 0.5 {
				s = 0.5
			}
			shrinkage = s
		}
	}

	shrunk := make([][]float64, n)
	for i := 0; i < n; i++ {
		shrunk[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			shrunk[i][j] = (1-shrinkage)*sampleCov[i][j] + shrinkage*target[i][j]
		}
	}

	return shrunk, nil
}

// CorrelationMatrixFromCovariance calculates the correlation matrix from a
// covariance matrix: corr(i,j) = cov(i,j) / sqrt(cov(i,i)*cov(j,j)).
func CorrelationMatrixFromCovariance(cov [][]float64) ([][]float64, error) {
	n := len(cov)
	if n == 0 {
		return nil, fmt.Errorf("correlation matrix: %w", ErrInsufficientAssets)
	}

	vars := make([]float64, n)
	for i := 0; i < n; i++ {
		if len(cov[i]) != n {
			return nil, fmt.Errorf("correlation matrix: not square: %w", formulas.ErrMismatchedSeries)
		}
		v := cov[i][i]
		if v <= 0 {
			return nil, fmt.Errorf("correlation matrix: non-positive variance at %d: %w", i, formulas.ErrDegenerateInput)
		}
		vars[i] = v
	}

	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
		corr[i][i] = 1.0
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			val := cov[i][j] / math.Sqrt(vars[i]*vars[j])
			if val > 1 {
				val = 1
			}
			if val < -1 {
				val = -1
			}
			corr[i][j] = val
			corr[j][i] = val
		}
	}

	return corr, nil
}
