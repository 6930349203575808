package prescription

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusVerified    Status = "verified"
	StatusRejected    Status = "rejected"
	StatusExpired     Status = "expired"
)

var transitions = map[Status][]Status{
	StatusPending:     {StatusUnderReview, StatusVerified, StatusRejected},
	StatusUnderReview: {StatusVerified, StatusRejected},
	// rejected -> pending and pending -> pending happen via Forward.
	StatusRejected: {StatusPending},
}

func CanTransition(from, to Status) bool {
	if from == StatusPending && to == StatusPending {
		// Forwarding a still-pending prescription to another pharmacy.
		return true
	}
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// MedicineStatus is the reviewer's per-line decision.
type MedicineStatus string

const (
	MedicinePending     MedicineStatus = "pending"
	MedicineApproved    MedicineStatus = "approved"
	MedicineAlternative MedicineStatus = "alternative_suggested"
	MedicineUnavailable MedicineStatus = "unavailable"
)

// RequestedMedicine is one line of the uploaded prescription. MedicineID is
// filled in at verification when the pharmacy maps the name to its catalog;
// AlternativeID points at the substitute when one is suggested.
type RequestedMedicine struct {
	Name          string         `json:"name"`
	Quantity      int            `json:"quantity"`
	Status        MedicineStatus `json:"status"`
	MedicineID    *uuid.UUID     `json:"medicine_id,omitempty"`
	AlternativeID *uuid.UUID     `json:"alternative_id,omitempty"`
}

type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

type RecurringDetails struct {
	Frequency        Frequency `json:"frequency"`
	NextRefillDate   time.Time `json:"next_refill_date"`
	RemainingRefills int       `json:"remaining_refills"`
}

type Prescription struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	PharmacyID uuid.UUID
	Status     Status
	Medicines  []RequestedMedicine
	Validity   time.Time
	ReviewerID *uuid.UUID

	IsRecurring bool
	Recurring   *RecurringDetails

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefillEligible is the pure predicate gating ProcessRefill.
func (p *Prescription) RefillEligible(now time.Time) bool {
	return p.IsRecurring &&
		p.Recurring != nil &&
		p.Recurring.RemainingRefills > 0 &&
		!now.Before(p.Recurring.NextRefillDate)
}

// NextRefillAfter advances from using calendar arithmetic: monthly and
// quarterly steps land on the same day of the target month, clamped to its
// last day (Jan 31 + 1 month = Feb 28/29), never a fixed duration.
func NextRefillAfter(from time.Time, f Frequency) time.Time {
	switch f {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return addMonthsClamped(from, 1)
	case FrequencyQuarterly:
		return addMonthsClamped(from, 3)
	default:
		return from.AddDate(0, 0, 30)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	hh, mm, ss := t.Clock()
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}
