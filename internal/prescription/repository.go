package prescription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPrescriptionNotFound   = errors.New("prescription not found")
	ErrStatusConflict         = errors.New("prescription status changed concurrently")
	ErrConcurrentModification = errors.New("prescription modified concurrently, retry")
	ErrNotEligibleForRefill   = errors.New("prescription is not eligible for a refill")
	ErrNoFulfillableMedicines = errors.New("no verified medicines to build a refill order from")
)

// InvalidTransitionError carries both states, same convention as the order
// machine.
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

// Repository persists prescriptions with the same CAS-on-status write the
// order repository uses.
type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	Update(ctx context.Context, p *Prescription, expected Status) (*Prescription, error)

	// FindExpired lists prescriptions past validity that are not yet in
	// the expired status. The daily sweep consumes this.
	FindExpired(ctx context.Context, now time.Time) ([]Prescription, error)
}
