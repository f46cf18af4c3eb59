package formulas

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// zeroStdTolerance is the threshold below which a standard deviation is
// treated as zero for ratio purposes.
const zeroStdTolerance = 1e-12

// Mean calculates the arithmetic mean of a slice of float64 values.
func Mean(data []float64) (float64, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("mean: %w", ErrEmptyInput)
	}
	return stat.Mean(data, nil), nil
}

// StdDev calculates the sample standard deviation (n-1 divisor).
// Requires at least two observations.
func StdDev(data []float64) (float64, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("stddev: need at least 2 observations, got %d: %w", len(data), ErrInsufficientData)
	}
	return stat.StdDev(data, nil), nil
}

// Variance calculates the sample variance (n-1 divisor).
func Variance(data []float64) (float64, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("variance: need at least 2 observations, got %d: %w", len(data), ErrInsufficientData)
	}
	return stat.Variance(data, nil), nil
}

// Percentile returns the p-th percentile of data using the linearly
// interpolated order statistic. p is clamped to [0, 100]. The input slice
// is not mutated; a sorted copy is used internally.
func Percentile(data []float64, p float64) (float64, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("percentile: %w", ErrEmptyInput)
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0], nil
	}
	if p >= 100 {
		return sorted[len(sorted)-1], nil
	}

	index := p / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower], nil
	}

	weight := index - float64(lower)
	return sorted[lower]*(1.0-weight) + sorted[upper]*weight, nil
}

// Covariance calculates the sample covariance between two equal-length series.
func Covariance(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("covariance: len(x)=%d len(y)=%d: %w", len(x), len(y), ErrMismatchedSeries)
	}
	if len(x) < 2 {
		return 0, fmt.Errorf("covariance: need at least 2 observations, got %d: %w", len(x), ErrInsufficientData)
	}
	return stat.Covariance(x, y, nil), nil
}

// Correlation calculates the Pearson correlation coefficient between two
// equal-length series. Fails when either series has (near) zero variance,
// where the ratio is undefined.
func Correlation(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("correlation: len(x)=%d len(y)=%d: %w", len(x), len(y), ErrMismatchedSeries)
	}
	if len(x) < 2 {
		return 0, fmt.Errorf("correlation: need at least 2 observations, got %d: %w", len(x), ErrInsufficientData)
	}

	sx := stat.StdDev(x, nil)
	sy := stat.StdDev(y, nil)
	if sx < zeroStdTolerance || sy < zeroStdTolerance {
		return 0, fmt.Errorf("correlation: zero variance input: %w", ErrDegenerateInput)
	}

	return stat.Correlation(x, y, nil), nil
}
