package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientBinPopulation is reported per peak when its covariate bin has no other member to draw from.
	ErrInsufficientBinPopulation = errors.New("insufficient bin population")

	// ErrDegenerateInput marks a zero-variance vector. It is recovered with a sentinel statistic and never aborts a batch.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrConvergenceFailure marks a regression fit that did not converge. The statistic is reported as missing.
	ErrConvergenceFailure = errors.New("convergence failure")

	// ErrShapeMismatch aborts the whole call: vector lengths or matrix dimensions disagree.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// UnitError is a failure isolated to one unit of work (a peak, a pair, a control draw).
type UnitError struct {
	Index int
	Err   error
}

func (u UnitError) Error() string {
	return fmt.Sprintf("unit %d: %v", u.Index, u.Err)
}

func (u UnitError) Unwrap() error {
	return u.Err
}

// Shape wraps ErrShapeMismatch with the offending dimensions.
func Shape(what string, got, want int) error {
	return fmt.Errorf("%w: %s has %d, expected %d", ErrShapeMismatch, what, got, want)
}
