package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownType       = errors.New("unknown ticket type")
	ErrInsufficientCount = errors.New("not enough tickets remaining")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

type InsufficientError struct {
	Type      string
	Requested int
	Remaining int
}

func (e InsufficientError) Error() string {
	return fmt.Sprintf("%s: requested %d, %d remaining", e.Type, e.Requested, e.Remaining)
}

func (e InsufficientError) Unwrap() error {
	return ErrInsufficientCount
}
