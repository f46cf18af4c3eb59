// Package formulas implements the statistical primitives shared by the
// risk, portfolio and sizing packages.
package formulas

import "errors"

// Sentinel errors shared across the analytics packages. Callers match them
// with errors.Is; wrapping sites add the operation context.
var (
	// ErrEmptyInput is returned when an operation receives no data.
	ErrEmptyInput = errors.New("empty input")

	// ErrInsufficientData is returned when a series is too short for the
	// requested statistic.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrMismatchedSeries is returned when paired series differ in length.
	ErrMismatchedSeries = errors.New("mismatched series lengths")

	// ErrDegenerateInput is returned when input makes a statistic undefined,
	// such as a zero-variance series under a ratio.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrInvalidParameter is returned when a parameter lies outside its
	// documented domain.
	ErrInvalidParameter = errors.New("invalid parameter")
)
