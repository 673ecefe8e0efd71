package domain

import "errors"

var (
	// ErrInvalidMove is returned by the reorder functions when a move references
	// an unknown column or a task that is not where the caller claims it is.
	// Callers treat it as a no-op.
	ErrInvalidMove = errors.New("invalid move")

	// ErrValidationRejected marks blank task content or board titles.
	ErrValidationRejected = errors.New("validation rejected")
)
