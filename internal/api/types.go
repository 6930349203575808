package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medikart/order-lifecycle/internal/order"
	"github.com/medikart/order-lifecycle/internal/prescription"
	"github.com/medikart/order-lifecycle/internal/timeline"
)

type CreateCartRequest struct {
	CustomerID string `json:"customer_id"`
	PharmacyID string `json:"pharmacy_id"`
}

type AddItemRequest struct {
	MedicineID string `json:"medicine_id"`
	Quantity   int    `json:"quantity"`
}

type UpdateItemRequest struct {
	Quantity int  `json:"quantity"`
	Selected bool `json:"selected"`
}

type CheckoutRequest struct {
	DeliverySlot    string  `json:"delivery_slot"`
	DeliveryAddress string  `json:"delivery_address"`
	DistanceKm      float64 `json:"distance_km"`
	PrescriptionID  string  `json:"prescription_id,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

type OrderItemResponse struct {
	ID                   uuid.UUID `json:"id"`
	MedicineID           uuid.UUID `json:"medicine_id"`
	Name                 string    `json:"name"`
	Quantity             int       `json:"quantity"`
	UnitPrice            float64   `json:"unit_price"`
	DiscountedPrice      float64   `json:"discounted_price"`
	Selected             bool      `json:"selected"`
	RequiresPrescription bool      `json:"requires_prescription"`
}

type OrderResponse struct {
	ID                   uuid.UUID           `json:"id"`
	CustomerID           uuid.UUID           `json:"customer_id"`
	PharmacyID           uuid.UUID           `json:"pharmacy_id"`
	Status               string              `json:"status"`
	Items                []OrderItemResponse `json:"items"`
	TotalAmount          float64             `json:"total_amount"`
	DiscountedAmount     float64             `json:"discounted_amount"`
	DeliveryCharge       float64             `json:"delivery_charge"`
	FinalAmount          float64             `json:"final_amount"`
	ApprovalDeadline     *time.Time          `json:"approval_deadline,omitempty"`
	ConfirmationDeadline *time.Time          `json:"confirmation_deadline,omitempty"`
	PrescriptionID       *uuid.UUID          `json:"prescription_id,omitempty"`
	Timeline             []TimelineEntry     `json:"timeline,omitempty"`
}

type TimelineEntry struct {
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toOrderResponse(o *order.Order, entries []timeline.Entry) OrderResponse {
	resp := OrderResponse{
		ID:                   o.ID,
		CustomerID:           o.CustomerID,
		PharmacyID:           o.PharmacyID,
		Status:               string(o.Status),
		TotalAmount:          o.TotalAmount,
		DiscountedAmount:     o.DiscountedAmount,
		DeliveryCharge:       o.DeliveryCharge,
		FinalAmount:          o.FinalAmount,
		ApprovalDeadline:     o.ApprovalDeadline,
		ConfirmationDeadline: o.ConfirmationDeadline,
		PrescriptionID:       o.PrescriptionID,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse(it))
	}
	for _, e := range entries {
		resp.Timeline = append(resp.Timeline, TimelineEntry{
			Status:    e.Status,
			Note:      e.Note,
			Actor:     e.Actor,
			CreatedAt: e.CreatedAt,
		})
	}
	return resp
}

type CreatePrescriptionRequest struct {
	CustomerID string                      `json:"customer_id"`
	PharmacyID string                      `json:"pharmacy_id"`
	Medicines  []PrescriptionMedicineInput `json:"medicines"`
	Validity   time.Time                   `json:"validity"`
	Recurring  *RecurringDetailsRequest    `json:"recurring,omitempty"`
}

type PrescriptionMedicineInput struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type RecurringDetailsRequest struct {
	Frequency        string    `json:"frequency"`
	NextRefillDate   time.Time `json:"next_refill_date"`
	RemainingRefills int       `json:"remaining_refills"`
}

type StartReviewRequest struct {
	ReviewerID string `json:"reviewer_id"`
}

type VerifyPrescriptionRequest struct {
	ReviewerID string             `json:"reviewer_id"`
	Outcome    string             `json:"outcome"`
	ValidUntil *time.Time         `json:"valid_until,omitempty"`
	Decisions  []MedicineDecision `json:"decisions"`
}

type MedicineDecision struct {
	Name          string `json:"name"`
	Status        string `json:"status"`
	MedicineID    string `json:"medicine_id,omitempty"`
	AlternativeID string `json:"alternative_id,omitempty"`
}

type RejectPrescriptionRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Reason     string `json:"reason"`
}

type ForwardPrescriptionRequest struct {
	PharmacyID string `json:"pharmacy_id"`
}

type PrescriptionMedicineResponse struct {
	Name          string     `json:"name"`
	Quantity      int        `json:"quantity"`
	Status        string     `json:"status"`
	MedicineID    *uuid.UUID `json:"medicine_id,omitempty"`
	AlternativeID *uuid.UUID `json:"alternative_id,omitempty"`
}

type PrescriptionResponse struct {
	ID          uuid.UUID                      `json:"id"`
	CustomerID  uuid.UUID                      `json:"customer_id"`
	PharmacyID  uuid.UUID                      `json:"pharmacy_id"`
	Status      string                         `json:"status"`
	Medicines   []PrescriptionMedicineResponse `json:"medicines"`
	Validity    time.Time                      `json:"validity"`
	IsRecurring bool                           `json:"is_recurring"`
	Recurring   *RecurringDetailsRequest       `json:"recurring,omitempty"`
	History     []TimelineEntry                `json:"history,omitempty"`
}

func toPrescriptionResponse(p *prescription.Prescription, entries []timeline.Entry) PrescriptionResponse {
	resp := PrescriptionResponse{
		ID:          p.ID,
		CustomerID:  p.CustomerID,
		PharmacyID:  p.PharmacyID,
		Status:      string(p.Status),
		Validity:    p.Validity,
		IsRecurring: p.IsRecurring,
	}
	for _, m := range p.Medicines {
		resp.Medicines = append(resp.Medicines, PrescriptionMedicineResponse{
			Name:          m.Name,
			Quantity:      m.Quantity,
			Status:        string(m.Status),
			MedicineID:    m.MedicineID,
			AlternativeID: m.AlternativeID,
		})
	}
	if p.Recurring != nil {
		resp.Recurring = &RecurringDetailsRequest{
			Frequency:        string(p.Recurring.Frequency),
			NextRefillDate:   p.Recurring.NextRefillDate,
			RemainingRefills: p.Recurring.RemainingRefills,
		}
	}
	for _, e := range entries {
		resp.History = append(resp.History, TimelineEntry{
			Status:    e.Status,
			Note:      e.Note,
			Actor:     e.Actor,
			CreatedAt: e.CreatedAt,
		})
	}
	return resp
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
