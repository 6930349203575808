package order

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrStatusConflict         = errors.New("order status changed concurrently")
	ErrConcurrentModification = errors.New("order modified concurrently, retry")
	ErrDeadlineExpired        = errors.New("the window for this action has closed")
	ErrPrescriptionRequired   = errors.New("order contains prescription items but no prescription was attached")
	ErrEmptyOrder             = errors.New("order has no selected items")
	ErrInvalidQuantity        = errors.New("quantity must be at least 1")
	ErrItemNotFound           = errors.New("item not found in order")
)

// InvalidTransitionError carries the attempted and current state so the
// caller can render an accurate message.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
}

func invalidTransition(from, to Status) error {
	return &InvalidTransitionError{From: from, To: to}
}
