package prescription

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/medikart/order-lifecycle/internal/notify"
	"github.com/medikart/order-lifecycle/internal/scheduler"
	"github.com/medikart/order-lifecycle/internal/timeline"
)

// RefillOrderer creates the order a recurring refill produces. Implemented
// by the order service; the indirection keeps this package from importing
// it.
type RefillOrderer interface {
	CreateRefillOrder(ctx context.Context, customerID, pharmacyID, prescriptionID uuid.UUID, quantities map[uuid.UUID]int) (uuid.UUID, error)
}

// Service is the prescription state machine.
type Service struct {
	repo     Repository
	orders   RefillOrderer
	recorder timeline.Recorder
	jobs     *scheduler.Manager
	emitter  notify.Emitter
	clock    clockwork.Clock
}

func NewService(
	repo Repository,
	orders RefillOrderer,
	recorder timeline.Recorder,
	jobs *scheduler.Manager,
	emitter notify.Emitter,
	clock clockwork.Clock,
) *Service {
	return &Service{
		repo:     repo,
		orders:   orders,
		recorder: recorder,
		jobs:     jobs,
		emitter:  emitter,
		clock:    clock,
	}
}

type CreateRequest struct {
	CustomerID uuid.UUID
	PharmacyID uuid.UUID
	Medicines  []RequestedMedicine
	Validity   time.Time
	Recurring  *RecurringDetails
}

// Create registers an uploaded prescription in pending. A recurring one
// gets its refill-due job armed right away; the refill handler re-checks
// eligibility so a not-yet-verified prescription simply no-ops.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Prescription, error) {
	p := &Prescription{
		ID:          uuid.New(),
		CustomerID:  req.CustomerID,
		PharmacyID:  req.PharmacyID,
		Status:      StatusPending,
		Validity:    req.Validity,
		IsRecurring: req.Recurring != nil,
		Recurring:   req.Recurring,
	}
	for _, m := range req.Medicines {
		m.Status = MedicinePending
		p.Medicines = append(p.Medicines, m)
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create prescription: %w", err)
	}

	if p.IsRecurring && p.Recurring.RemainingRefills > 0 {
		if err := s.jobs.Schedule(ctx, scheduler.Job{
			ID:       scheduler.PrescriptionRefillJobID(p.ID),
			FireAt:   p.Recurring.NextRefillDate,
			Purpose:  scheduler.PurposeRefillDue,
			EntityID: p.ID,
		}); err != nil {
			return nil, err
		}
	}

	s.record(ctx, p, "", "prescription submitted", "customer")
	return p, nil
}

// StartReview moves a pending prescription under a reviewer.
func (s *Service) StartReview(ctx context.Context, id, reviewerID uuid.UUID) (*Prescription, error) {
	return s.withRetry(ctx, func(ctx context.Context) (*Prescription, error) {
		p, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.Status != StatusPending {
			return nil, invalidTransition(p.Status, StatusUnderReview)
		}

		old := p.Status
		p.Status = StatusUnderReview
		rid := reviewerID
		p.ReviewerID = &rid

		updated, err := s.repo.Update(ctx, p, old)
		if err != nil {
			return nil, err
		}

		s.record(ctx, updated, old, "review started", "pharmacy")
		return updated, nil
	})
}

// MedicineDecision is the reviewer's verdict on one requested line,
// matched by name.
type MedicineDecision struct {
	Name          string
	Status        MedicineStatus
	MedicineID    *uuid.UUID
	AlternativeID *uuid.UUID
}

type VerifyRequest struct {
	ID         uuid.UUID
	ReviewerID uuid.UUID
	Decisions  []MedicineDecision
	// Outcome is the aggregate status the reviewer settles on. Per-line
	// decisions do not force it: a prescription can be verified with some
	// items substituted or dropped.
	Outcome Status
	// ValidUntil replaces the validity timestamp when non-zero.
	ValidUntil time.Time
}

// Verify applies the per-medicine decisions and the reviewer's aggregate
// outcome. Legal from pending or under_review.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*Prescription, error) {
	if req.Outcome != StatusVerified && req.Outcome != StatusUnderReview {
		return nil, invalidTransition(StatusUnderReview, req.Outcome)
	}

	return s.withRetry(ctx, func(ctx context.Context) (*Prescription, error) {
		p, err := s.repo.GetByID(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		if p.Status != StatusPending && p.Status != StatusUnderReview {
			return nil, invalidTransition(p.Status, req.Outcome)
		}

		for _, d := range req.Decisions {
			for i := range p.Medicines {
				if p.Medicines[i].Name != d.Name {
					continue
				}
				p.Medicines[i].Status = d.Status
				p.Medicines[i].MedicineID = d.MedicineID
				p.Medicines[i].AlternativeID = d.AlternativeID
				break
			}
		}

		old := p.Status
		p.Status = req.Outcome
		rid := req.ReviewerID
		p.ReviewerID = &rid
		if !req.ValidUntil.IsZero() {
			p.Validity = req.ValidUntil
		}

		updated, err := s.repo.Update(ctx, p, old)
		if err != nil {
			return nil, err
		}

		s.record(ctx, updated, old, "reviewed by pharmacist", "pharmacy")
		return updated, nil
	})
}

// Reject declines the prescription. A rejected prescription can still be
// forwarded to another pharmacy.
func (s *Service) Reject(ctx context.Context, id, reviewerID uuid.UUID, reason string) (*Prescription, error) {
	return s.withRetry(ctx, func(ctx context.Context) (*Prescription, error) {
		p, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.Status != StatusPending && p.Status != StatusUnderReview {
			return nil, invalidTransition(p.Status, StatusRejected)
		}

		old := p.Status
		p.Status = StatusRejected
		rid := reviewerID
		p.ReviewerID = &rid

		updated, err := s.repo.Update(ctx, p, old)
		if err != nil {
			return nil, err
		}

		s.record(ctx, updated, old, "rejected: "+reason, "pharmacy")
		return updated, nil
	})
}

// Forward re-submits a rejected or pending prescription to a different
// pharmacy. Decisions reset to pending; validity is deliberately kept.
func (s *Service) Forward(ctx context.Context, id, newPharmacyID uuid.UUID) (*Prescription, error) {
	return s.withRetry(ctx, func(ctx context.Context) (*Prescription, error) {
		p, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.Status != StatusRejected && p.Status != StatusPending {
			return nil, invalidTransition(p.Status, StatusPending)
		}

		old := p.Status
		p.Status = StatusPending
		p.PharmacyID = newPharmacyID
		p.ReviewerID = nil
		for i := range p.Medicines {
			p.Medicines[i].Status = MedicinePending
			p.Medicines[i].MedicineID = nil
			p.Medicines[i].AlternativeID = nil
		}

		updated, err := s.repo.Update(ctx, p, old)
		if err != nil {
			return nil, err
		}

		s.record(ctx, updated, old, fmt.Sprintf("forwarded to pharmacy %s", newPharmacyID), "customer")
		return updated, nil
	})
}

// ProcessRefill consumes one refill: decrements the remaining count,
// advances the next refill date on the calendar, and spawns a new order in
// pending_approval tied to this prescription. The consume is written first;
// order creation sits outside the retried write so a lost CAS can never
// spawn a duplicate order.
func (s *Service) ProcessRefill(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	var quantities map[uuid.UUID]int
	updated, err := s.withRetry(ctx, func(ctx context.Context) (*Prescription, error) {
		p, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.Status == StatusExpired || !p.RefillEligible(s.clock.Now()) {
			return nil, ErrNotEligibleForRefill
		}

		quantities = refillQuantities(p)
		if len(quantities) == 0 {
			return nil, ErrNoFulfillableMedicines
		}

		p.Recurring.RemainingRefills--
		p.Recurring.NextRefillDate = NextRefillAfter(p.Recurring.NextRefillDate, p.Recurring.Frequency)
		return s.repo.Update(ctx, p, p.Status)
	})
	if err != nil {
		return nil, err
	}

	jobID := scheduler.PrescriptionRefillJobID(updated.ID)
	if updated.Recurring.RemainingRefills > 0 {
		if err := s.jobs.Schedule(ctx, scheduler.Job{
			ID:       jobID,
			FireAt:   updated.Recurring.NextRefillDate,
			Purpose:  scheduler.PurposeRefillDue,
			EntityID: updated.ID,
		}); err != nil {
			log.Printf("prescription: schedule next refill for %s: %v", updated.ID, err)
		}
	} else if err := s.jobs.Cancel(ctx, jobID); err != nil {
		log.Printf("prescription: cancel refill job for %s: %v", updated.ID, err)
	}

	orderID, err := s.orders.CreateRefillOrder(ctx, updated.CustomerID, updated.PharmacyID, updated.ID, quantities)
	if err != nil {
		return nil, fmt.Errorf("create refill order: %w", err)
	}

	s.record(ctx, updated, updated.Status,
		fmt.Sprintf("refill processed, order %s created, %d refills left", orderID, updated.Recurring.RemainingRefills),
		timeline.ActorSystem)
	return updated, nil
}

// HandleRefillDue is the refill-due timer callback. Ineligibility here is
// the precondition guard, not an error.
func (s *Service) HandleRefillDue(ctx context.Context, id uuid.UUID) error {
	_, err := s.ProcessRefill(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotEligibleForRefill) ||
			errors.Is(err, ErrNoFulfillableMedicines) ||
			errors.Is(err, ErrPrescriptionNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// ExpireOutdated force-transitions every prescription past validity to
// expired, regardless of current status. This is the one move that bypasses
// the transition table; it is idempotent and driven by the daily sweep.
func (s *Service) ExpireOutdated(ctx context.Context) (int, error) {
	candidates, err := s.repo.FindExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("find expired prescriptions: %w", err)
	}

	expired := 0
	for _, p := range candidates {
		old := p.Status
		p.Status = StatusExpired

		updated, err := s.repo.Update(ctx, &p, old)
		if err != nil {
			if errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrPrescriptionNotFound) {
				continue
			}
			log.Printf("prescription: expire %s: %v", p.ID, err)
			continue
		}

		if err := s.jobs.Cancel(ctx, scheduler.PrescriptionRefillJobID(p.ID)); err != nil {
			log.Printf("prescription: cancel refill job for %s: %v", p.ID, err)
		}

		s.record(ctx, updated, old, "expired: validity lapsed", timeline.ActorSystem)
		expired++
	}

	return expired, nil
}

// Get returns the prescription with its history.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, []timeline.Entry, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	entries, err := s.recorder.ListByEntity(ctx, timeline.EntityPrescription, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load history: %w", err)
	}

	return p, entries, nil
}

// refillQuantities builds the order lines a refill should contain: approved
// medicines by their mapped catalog ID, substituted ones by the suggested
// alternative.
func refillQuantities(p *Prescription) map[uuid.UUID]int {
	quantities := make(map[uuid.UUID]int)
	for _, m := range p.Medicines {
		switch m.Status {
		case MedicineApproved:
			if m.MedicineID != nil {
				quantities[*m.MedicineID] += m.Quantity
			}
		case MedicineAlternative:
			if m.AlternativeID != nil {
				quantities[*m.AlternativeID] += m.Quantity
			}
		}
	}
	return quantities
}

func (s *Service) withRetry(ctx context.Context, fn func(ctx context.Context) (*Prescription, error)) (*Prescription, error) {
	p, err := fn(ctx)
	if errors.Is(err, ErrStatusConflict) {
		p, err = fn(ctx)
		if errors.Is(err, ErrStatusConflict) {
			return nil, ErrConcurrentModification
		}
	}
	return p, err
}

func (s *Service) record(ctx context.Context, p *Prescription, old Status, note, actor string) {
	err := s.recorder.Append(ctx, timeline.Entry{
		EntityType: timeline.EntityPrescription,
		EntityID:   p.ID,
		Status:     string(p.Status),
		Note:       note,
		Actor:      actor,
		CreatedAt:  s.clock.Now(),
	})
	if err != nil {
		log.Printf("prescription: append history for %s: %v", p.ID, err)
	}

	s.emitter.Emit(ctx, notify.Event{
		EntityType: timeline.EntityPrescription,
		EntityID:   p.ID,
		OldStatus:  string(old),
		NewStatus:  string(p.Status),
		Note:       note,
		At:         s.clock.Now(),
	})
}
