package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Contract errors raised before any statistic is computed
	ErrInvalidInput    = errors.New("invalid input")
	ErrLengthMismatch  = fmt.Errorf("%w: label/outcome length mismatch", ErrInvalidInput)
	ErrNonBinaryLabels = fmt.Errorf("%w: labels must contain exactly two categories", ErrInvalidInput)
	ErrNoOutcomes      = fmt.Errorf("%w: at least one outcome column required", ErrInvalidInput)
	ErrBadPermutations = fmt.Errorf("%w: permutation count must be positive", ErrInvalidInput)

	// Data errors: a group has no usable observations for a column
	ErrDegenerateGroup = errors.New("degenerate group")

	// Determinism errors
	ErrSeedMismatch = errors.New("seed mismatch")

	// Not found errors
	ErrNotFound       = errors.New("resource not found")
	ErrScreenNotFound = fmt.Errorf("%w: screen", ErrNotFound)
)

// Error constructors with context

func NewInvalidInputError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}

// NewDegenerateGroupError names the outcome column whose group has too few
// usable observations for its mean to be defined.
func NewDegenerateGroupError(column VariableKey, group string, usable int) error {
	return fmt.Errorf("%w: column %s has %d usable observations in group %s", ErrDegenerateGroup, column, usable, group)
}

func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// Error checking helpers

func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func IsDegenerateGroup(err error) bool {
	return errors.Is(err, ErrDegenerateGroup)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
