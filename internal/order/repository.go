package order

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists orders. Update is a compare-and-swap on status: the
// write succeeds only while the stored status still equals expected,
// surfacing ErrStatusConflict otherwise. That check is the optimistic
// concurrency control every transition rides on.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// Update writes the whole order (items replaced wholesale) guarded by
	// the expected current status.
	Update(ctx context.Context, o *Order, expected Status) (*Order, error)

	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]Order, error)
}
