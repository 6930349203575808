package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Medicine carries the catalog fields the lifecycle engine reads (price
// snapshots at add-to-cart time) plus stock, the one field it mutates.
type Medicine struct {
	ID                   uuid.UUID
	PharmacyID           uuid.UUID
	Name                 string
	UnitPrice            float64
	DiscountedPrice      float64
	RequiresPrescription bool
	Stock                int
	ExpiresAt            *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// StockLevel is what the periodic inventory sweep reports on.
type StockLevel struct {
	MedicineID uuid.UUID
	PharmacyID uuid.UUID
	Name       string
	Stock      int
	ExpiresAt  *time.Time
}
