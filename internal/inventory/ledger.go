package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMedicineNotFound  = errors.New("medicine not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// Ledger owns the stock count of every medicine. Reserve and Release are
// single atomic read-modify-writes at the storage layer so that concurrent
// callers racing for the same medicine never drive stock negative.
type Ledger interface {
	// Reserve atomically decrements stock by qty. Fails with
	// ErrInsufficientStock when stock < qty, leaving stock untouched.
	Reserve(ctx context.Context, medicineID uuid.UUID, qty int) error

	// Release atomically increments stock by qty.
	Release(ctx context.Context, medicineID uuid.UUID, qty int) error

	// Stock returns the current stock count. Read-only, used by the
	// checkout pre-check; it makes no reservation.
	Stock(ctx context.Context, medicineID uuid.UUID) (int, error)

	// GetMedicine returns the catalog row, used to snapshot prices when an
	// item enters a cart.
	GetMedicine(ctx context.Context, medicineID uuid.UUID) (*Medicine, error)

	// FindLowStock lists medicines with stock at or below threshold.
	FindLowStock(ctx context.Context, threshold int) ([]StockLevel, error)

	// FindExpiring lists medicines whose expiry date has passed.
	FindExpiring(ctx context.Context, now time.Time) ([]StockLevel, error)
}
