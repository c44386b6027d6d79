package domain

import "errors"

// Standard application-level errors. Infrastructure adapters wrap their
// underlying failures with these so callers can branch with errors.Is.
var (
	ErrNotFound            = errors.New("record not found")
	ErrConstraintViolation = errors.New("business constraint violated")
	ErrExecutionFailed     = errors.New("order execution failed")
	ErrTransferFailed      = errors.New("transfer failed")
	ErrAlreadyClosed       = errors.New("position already closed")
	ErrBelowMinimum        = errors.New("amount below withdrawal minimum")
)
