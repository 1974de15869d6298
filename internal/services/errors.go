package services

import (
	"errors"
	"fmt"
)

// ErrValidation is the parent of every input error. Callers get these back
// directly; they are never queued for a later retry.
var ErrValidation = errors.New("validation failed")

var (
	ErrDuplicateContribution = fmt.Errorf("%w: you already shared this price in the last 24 hours", ErrValidation)
	ErrForbidden             = errors.New("forbidden")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
