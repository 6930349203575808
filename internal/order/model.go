package order

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusCart             Status = "cart"
	StatusPendingApproval  Status = "pending_approval"
	StatusApproved         Status = "approved"
	StatusProcessing       Status = "processing"
	StatusReadyForDelivery Status = "ready_for_delivery"
	StatusOutForDelivery   Status = "out_for_delivery"
	StatusDelivered        Status = "delivered"
	StatusRejected         Status = "rejected"
	StatusCancelled        Status = "cancelled"
	StatusRefunded         Status = "refunded"
)

// transitions is the single source of truth for the order state machine.
// Controllers and timer callbacks both go through it; there are no
// scattered status checks.
var transitions = map[Status][]Status{
	StatusCart:             {StatusPendingApproval, StatusApproved},
	StatusPendingApproval:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:         {StatusProcessing, StatusCancelled},
	StatusProcessing:       {StatusReadyForDelivery, StatusCancelled},
	StatusReadyForDelivery: {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery:   {StatusDelivered, StatusCancelled},
	StatusCancelled:        {StatusRefunded},
	StatusDelivered:        {StatusRefunded},
}

func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further lifecycle action may touch the order.
// Refunds are driven by the payment collaborator, not this engine, so
// cancelled and delivered count as terminal here.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusRejected, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// stockReserved reports whether an order in this state holds reserved
// inventory. Reservation happens on the approved -> processing transition.
func (s Status) stockReserved() bool {
	switch s {
	case StatusProcessing, StatusReadyForDelivery, StatusOutForDelivery:
		return true
	}
	return false
}

// Item is one cart line. Prices are snapshotted when the item is added;
// later catalog price changes do not retroactively alter an existing cart.
type Item struct {
	ID                   uuid.UUID `json:"id"`
	MedicineID           uuid.UUID `json:"medicine_id"`
	Name                 string    `json:"name"`
	Quantity             int       `json:"quantity"`
	UnitPrice            float64   `json:"unit_price"`
	DiscountedPrice      float64   `json:"discounted_price"`
	Selected             bool      `json:"selected"`
	RequiresPrescription bool      `json:"requires_prescription"`
}

type Order struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	PharmacyID uuid.UUID
	Status     Status
	Items      []Item

	TotalAmount      float64
	DiscountedAmount float64
	DeliveryCharge   float64
	FinalAmount      float64

	DeliverySlot    string
	DeliveryAddress string
	DistanceKm      float64

	ApprovalDeadline     *time.Time
	ConfirmationDeadline *time.Time
	PrescriptionID       *uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// recomputeAmounts re-derives the money fields from the selected items.
// Invariant: FinalAmount == DiscountedAmount + DeliveryCharge.
func (o *Order) recomputeAmounts() {
	var total, discounted float64
	for _, it := range o.Items {
		if !it.Selected {
			continue
		}
		total += float64(it.Quantity) * it.UnitPrice
		discounted += float64(it.Quantity) * it.DiscountedPrice
	}
	o.TotalAmount = total
	o.DiscountedAmount = discounted
	o.FinalAmount = o.DiscountedAmount + o.DeliveryCharge
}

// selectedItems returns the lines that participate in checkout and
// reservation.
func (o *Order) selectedItems() []Item {
	var out []Item
	for _, it := range o.Items {
		if it.Selected {
			out = append(out, it)
		}
	}
	return out
}

// requiresPrescription reports whether any selected item needs one.
func (o *Order) requiresPrescription() bool {
	for _, it := range o.Items {
		if it.Selected && it.RequiresPrescription {
			return true
		}
	}
	return false
}
