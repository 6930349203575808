package order

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/medikart/order-lifecycle/internal/config"
	"github.com/medikart/order-lifecycle/internal/inventory"
	"github.com/medikart/order-lifecycle/internal/notify"
	"github.com/medikart/order-lifecycle/internal/scheduler"
	"github.com/medikart/order-lifecycle/internal/timeline"
)

// Service is the order state machine. Every transition re-reads the order,
// validates against the transition table, and writes the new state with a
// compare-and-swap on status. A conflicting write is retried once before
// surfacing ErrConcurrentModification.
type Service struct {
	repo     Repository
	ledger   inventory.Ledger
	recorder timeline.Recorder
	jobs     *scheduler.Manager
	emitter  notify.Emitter
	pricer   DeliveryPricer
	clock    clockwork.Clock
	cfg      config.Config
}

func NewService(
	repo Repository,
	ledger inventory.Ledger,
	recorder timeline.Recorder,
	jobs *scheduler.Manager,
	emitter notify.Emitter,
	pricer DeliveryPricer,
	clock clockwork.Clock,
	cfg config.Config,
) *Service {
	return &Service{
		repo:     repo,
		ledger:   ledger,
		recorder: recorder,
		jobs:     jobs,
		emitter:  emitter,
		pricer:   pricer,
		clock:    clock,
		cfg:      cfg,
	}
}

// CreateCart opens an empty cart for a customer at a pharmacy.
func (s *Service) CreateCart(ctx context.Context, customerID, pharmacyID uuid.UUID) (*Order, error) {
	o := &Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		PharmacyID: pharmacyID,
		Status:     StatusCart,
	}

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	s.record(ctx, o, "", "cart created", "customer")
	return o, nil
}

// AddItem puts qty units of a medicine into the cart, snapshotting the
// catalog prices. Adding a medicine already in the cart bumps its quantity.
func (s *Service) AddItem(ctx context.Context, orderID, medicineID uuid.UUID, qty int) (*Order, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	med, err := s.ledger.GetMedicine(ctx, medicineID)
	if err != nil {
		return nil, fmt.Errorf("load medicine: %w", err)
	}

	return s.withRetry(ctx, func(ctx context.Context) (*Order, error) {
		o, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status != StatusCart {
			return nil, invalidTransition(o.Status, StatusCart)
		}

		found := false
		for i := range o.Items {
			if o.Items[i].MedicineID == medicineID {
				o.Items[i].Quantity += qty
				found = true
				break
			}
		}
		if !found {
			o.Items = append(o.Items, Item{
				ID:                   uuid.New(),
				MedicineID:           med.ID,
				Name:                 med.Name,
				Quantity:             qty,
				UnitPrice:            med.UnitPrice,
				DiscountedPrice:      med.DiscountedPrice,
				Selected:             true,
				RequiresPrescription: med.RequiresPrescription,
			})
		}

		o.recomputeAmounts()
		return s.repo.Update(ctx, o, StatusCart)
	})
}

// UpdateItem changes quantity and selection of a cart line.
func (s *Service) UpdateItem(ctx context.Context, orderID, itemID uuid.UUID, qty int, selected bool) (*Order, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	return s.withRetry(ctx, func(ctx context.Context) (*Order, error) {
		o, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status != StatusCart {
			return nil, invalidTransition(o.Status, StatusCart)
		}

		found := false
		for i := range o.Items {
			if o.Items[i].ID == itemID {
				o.Items[i].Quantity = qty
				o.Items[i].Selected = selected
				found = true
				break
			}
		}
		if !found {
			return nil, ErrItemNotFound
		}

		o.recomputeAmounts()
		return s.repo.Update(ctx, o, StatusCart)
	})
}

type CheckoutRequest struct {
	OrderID         uuid.UUID
	DeliverySlot    string
	DeliveryAddress string
	DistanceKm      float64
	PrescriptionID  *uuid.UUID
}

// Checkout closes the cart. Stock is checked read-only here; reservation is
// deferred to Confirm to keep the window items are locked as short as
// possible. Orders with prescription items go to pending_approval under an
// approval deadline; the rest are approved immediately under a confirmation
// deadline.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	return s.withRetry(ctx, func(ctx context.Context) (*Order, error) {
		o, err := s.repo.GetByID(ctx, req.OrderID)
		if err != nil {
			return nil, err
		}
		if o.Status != StatusCart {
			return nil, invalidTransition(o.Status, StatusPendingApproval)
		}

		selected := o.selectedItems()
		if len(selected) == 0 {
			return nil, ErrEmptyOrder
		}

		for _, it := range selected {
			stock, err := s.ledger.Stock(ctx, it.MedicineID)
			if err != nil {
				return nil, fmt.Errorf("check stock for %s: %w", it.Name, err)
			}
			if stock < it.Quantity {
				return nil, fmt.Errorf("%s: %w", it.Name, inventory.ErrInsufficientStock)
			}
		}

		needsPrescription := o.requiresPrescription()
		if needsPrescription && req.PrescriptionID == nil {
			return nil, ErrPrescriptionRequired
		}

		o.DeliverySlot = req.DeliverySlot
		o.DeliveryAddress = req.DeliveryAddress
		o.DistanceKm = req.DistanceKm
		o.PrescriptionID = req.PrescriptionID
		o.DeliveryCharge = s.pricer.Charge(req.DistanceKm, o.DiscountedAmount)
		o.recomputeAmounts()

		now := s.clock.Now()
		old := o.Status

		if needsPrescription {
			deadline := now.Add(s.cfg.ApprovalWindow)
			o.Status = StatusPendingApproval
			o.ApprovalDeadline = &deadline

			// The job is durable before the status flips; if the write
			// below loses the race the callback's guard makes it a no-op.
			if err := s.jobs.Schedule(ctx, scheduler.Job{
				ID:       scheduler.OrderApprovalJobID(o.ID),
				FireAt:   deadline,
				Purpose:  scheduler.PurposeApprovalExpiry,
				EntityID: o.ID,
			}); err != nil {
				return nil, err
			}
		} else {
			deadline := now.Add(s.cfg.ConfirmationWindow)
			o.Status = StatusApproved
			o.ConfirmationDeadline = &deadline

			if err := s.jobs.Schedule(ctx, scheduler.Job{
				ID:       scheduler.OrderConfirmationJobID(o.ID),
				FireAt:   deadline,
				Purpose:  scheduler.PurposeConfirmationExpiry,
				EntityID: o.ID,
			}); err != nil {
				return nil, err
			}
		}

		updated, err := s.repo.Update(ctx, o, StatusCart)
		if err != nil {
			return nil, err
		}

		s.record(ctx, updated, old, "checked out", "customer")
		return updated, nil
	})
}

// Approve is the pharmacy accepting a pending order. The order stays in
// approved awaiting customer confirmation under a fresh deadline.
func (s *Service) Approve(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	return s.withRetry(ctx, func(ctx context.Context) (*Order, error) {
		o, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status != StatusPendingApproval {
			return nil, invalidTransition(o.Status, StatusApproved)
		}
		if o.ApprovalDeadline != nil && s.clock.Now().After(*o.ApprovalDeadline) {
			return nil, ErrDeadlineExpired
		}

		old := o.Status
		deadline := s.clock.Now().Add(s.cfg.ConfirmationWindow)
		o.Status = StatusApproved
		o.ApprovalDeadline = nil
		o.ConfirmationDeadline = &deadline

		if err := s.jobs.Schedule(ctx, scheduler.Job{
			ID:       scheduler.OrderConfirmationJobID(o.ID),
			FireAt:   deadline,
			Purpose:  scheduler.PurposeConfirmationExpiry,
			EntityID: o.ID,
		}); err != nil {
			return nil, err
		}

		updated, err := s.repo.Update(ctx, o, StatusPendingApproval)
		if err != nil {
			return nil, err
		}

		s.cancelJob(ctx, scheduler.OrderApprovalJobID(o.ID))
		s.record(ctx, updated, old, "approved by pharmacy", "pharmacy")
		return updated, nil
	})
}

// Reject is the pharmacy declining a pending order. Terminal; nothing was
// reserved, so inventory is untouched.
func (s *Service) Reject(ctx context.Context, orderID uuid.UUID, reason string) (*Order, error) {
	return s.withRetry(ctx, func(ctx context.Context) (*Order, error) {
		o, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status != StatusPendingApproval {
			return nil, invalidTransition(o.Status, StatusRejected)
		}

		old := o.Status
		o.Status = StatusRejected
		o.ApprovalDeadline = nil

		updated, err := s.repo.Update(ctx, o, StatusPendingApproval)
		if err != nil {
			return nil, err
		}

		s.cancelJob(ctx, scheduler.OrderApprovalJobID(o.ID))
		s.record(ctx, updated, old, "rejected by pharmacy: "+reason, "pharmacy")
		return updated, nil
	})
}

// Confirm is the customer committing to an approved order. Stock for every
// selected item is reserved all-or-nothing; only then does the status move
// to processing.
func (s *Service) Confirm(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	return s.withRetry(ctx, func(ctx context.Context) (*Order, error) {
		o, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status != StatusApproved {
			return nil, invalidTransition(o.Status, StatusProcessing)
		}
		if o.ConfirmationDeadline != nil && s.clock.Now().After(*o.ConfirmationDeadline) {
			return nil, ErrDeadlineExpired
		}

		reserved, err := s.reserveAll(ctx, o.selectedItems())
		if err != nil {
			return nil, err
		}

		old := o.Status
		o.Status = StatusProcessing
		o.ConfirmationDeadline = nil

		updated, err := s.repo.Update(ctx, o, StatusApproved)
		if err != nil {
			// The status write lost; give the stock back before the retry
			// re-reads and re-reserves.
			s.releaseAll(ctx, reserved)
			return nil, err
		}

		s.cancelJob(ctx, scheduler.OrderConfirmationJobID(o.ID))
		s.record(ctx, updated, old, "confirmed by customer, stock reserved", "customer")
		return updated, nil
	})
}

// Cancel is legal from any non-terminal state and idempotent: cancelling an
// already-cancelled order returns it unchanged. Stock is restored only when
// the order had actually reserved it.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID, reason, actor string) (*Order, error) {
	return s.withRetry(ctx, func(ctx context.Context) (*Order, error) {
		o, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status == StatusCancelled {
			return o, nil
		}
		if o.Status.Terminal() {
			return nil, invalidTransition(o.Status, StatusCancelled)
		}

		old := o.Status
		o.Status = StatusCancelled
		o.ApprovalDeadline = nil
		o.ConfirmationDeadline = nil

		updated, err := s.repo.Update(ctx, o, old)
		if err != nil {
			return nil, err
		}

		if old.stockReserved() {
			s.releaseAll(ctx, o.selectedItems())
		}

		s.cancelJob(ctx, scheduler.OrderApprovalJobID(o.ID))
		s.cancelJob(ctx, scheduler.OrderConfirmationJobID(o.ID))

		note := "cancelled: " + reason
		s.record(ctx, updated, old, note, actor)
		return updated, nil
	})
}

// MarkReadyForDelivery, MarkOutForDelivery and MarkDelivered advance the
// fulfilment leg. No inventory or timers involved past processing.

func (s *Service) MarkReadyForDelivery(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	return s.advance(ctx, orderID, StatusProcessing, StatusReadyForDelivery, "packed and ready for delivery", "pharmacy")
}

func (s *Service) MarkOutForDelivery(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	return s.advance(ctx, orderID, StatusReadyForDelivery, StatusOutForDelivery, "handed to delivery", "pharmacy")
}

func (s *Service) MarkDelivered(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	return s.advance(ctx, orderID, StatusOutForDelivery, StatusDelivered, "delivered to customer", "pharmacy")
}

func (s *Service) advance(ctx context.Context, orderID uuid.UUID, from, to Status, note, actor string) (*Order, error) {
	return s.withRetry(ctx, func(ctx context.Context) (*Order, error) {
		o, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status != from || !CanTransition(from, to) {
			return nil, invalidTransition(o.Status, to)
		}

		o.Status = to
		updated, err := s.repo.Update(ctx, o, from)
		if err != nil {
			return nil, err
		}

		s.record(ctx, updated, from, note, actor)
		return updated, nil
	})
}

// AutoExpireApproval is the approval-expiry timer callback. If the pharmacy
// already acted the precondition fails and the callback is a silent no-op.
func (s *Service) AutoExpireApproval(ctx context.Context, orderID uuid.UUID) error {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil
		}
		return err
	}

	if o.Status != StatusPendingApproval || o.ApprovalDeadline == nil {
		return nil
	}
	if s.clock.Now().Before(*o.ApprovalDeadline) {
		// Deadline was extended after this job was armed.
		return nil
	}

	old := o.Status
	o.Status = StatusCancelled
	o.ApprovalDeadline = nil

	updated, err := s.repo.Update(ctx, o, StatusPendingApproval)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			// A human action raced the timer and won.
			return nil
		}
		return err
	}

	s.record(ctx, updated, old, "auto-cancelled: pharmacy approval window elapsed", timeline.ActorSystem)
	return nil
}

// AutoExpireConfirmation is the confirmation-expiry timer callback. Nothing
// was reserved yet, so no stock moves.
func (s *Service) AutoExpireConfirmation(ctx context.Context, orderID uuid.UUID) error {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil
		}
		return err
	}

	if o.Status != StatusApproved || o.ConfirmationDeadline == nil {
		return nil
	}
	if s.clock.Now().Before(*o.ConfirmationDeadline) {
		return nil
	}

	old := o.Status
	o.Status = StatusCancelled
	o.ConfirmationDeadline = nil

	updated, err := s.repo.Update(ctx, o, StatusApproved)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil
		}
		return err
	}

	s.record(ctx, updated, old, "auto-cancelled: customer confirmation window elapsed", timeline.ActorSystem)
	return nil
}

// CreateRefillOrder builds a new pending_approval order from a recurring
// prescription. Prices are snapshotted now; delivery details are settled
// when the customer confirms.
func (s *Service) CreateRefillOrder(ctx context.Context, customerID, pharmacyID, prescriptionID uuid.UUID, quantities map[uuid.UUID]int) (uuid.UUID, error) {
	if len(quantities) == 0 {
		return uuid.Nil, ErrEmptyOrder
	}

	o := &Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		PharmacyID: pharmacyID,
		Status:     StatusPendingApproval,
	}

	for medID, qty := range quantities {
		if qty < 1 {
			return uuid.Nil, ErrInvalidQuantity
		}
		med, err := s.ledger.GetMedicine(ctx, medID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("load medicine: %w", err)
		}
		o.Items = append(o.Items, Item{
			ID:                   uuid.New(),
			MedicineID:           med.ID,
			Name:                 med.Name,
			Quantity:             qty,
			UnitPrice:            med.UnitPrice,
			DiscountedPrice:      med.DiscountedPrice,
			Selected:             true,
			RequiresPrescription: med.RequiresPrescription,
		})
	}

	pid := prescriptionID
	o.PrescriptionID = &pid
	deadline := s.clock.Now().Add(s.cfg.ApprovalWindow)
	o.ApprovalDeadline = &deadline
	o.recomputeAmounts()

	if err := s.repo.Create(ctx, o); err != nil {
		return uuid.Nil, fmt.Errorf("create refill order: %w", err)
	}

	if err := s.jobs.Schedule(ctx, scheduler.Job{
		ID:       scheduler.OrderApprovalJobID(o.ID),
		FireAt:   deadline,
		Purpose:  scheduler.PurposeApprovalExpiry,
		EntityID: o.ID,
	}); err != nil {
		return uuid.Nil, err
	}

	s.record(ctx, o, "", "created from recurring prescription refill", timeline.ActorSystem)
	return o.ID, nil
}

// Get returns the order with its timeline.
func (s *Service) Get(ctx context.Context, orderID uuid.UUID) (*Order, []timeline.Entry, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	entries, err := s.recorder.ListByEntity(ctx, timeline.EntityOrder, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("load timeline: %w", err)
	}

	return o, entries, nil
}

func (s *Service) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]Order, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByCustomer(ctx, customerID, limit, offset)
}

// withRetry retries the transition once when the CAS write loses, then
// surfaces ErrConcurrentModification.
func (s *Service) withRetry(ctx context.Context, fn func(ctx context.Context) (*Order, error)) (*Order, error) {
	o, err := fn(ctx)
	if errors.Is(err, ErrStatusConflict) {
		o, err = fn(ctx)
		if errors.Is(err, ErrStatusConflict) {
			return nil, ErrConcurrentModification
		}
	}
	return o, err
}

// reserveAll decrements stock for each item, unwinding on the first
// failure so the whole reservation is all-or-nothing.
func (s *Service) reserveAll(ctx context.Context, items []Item) ([]Item, error) {
	var reserved []Item
	for _, it := range items {
		if err := s.ledger.Reserve(ctx, it.MedicineID, it.Quantity); err != nil {
			s.releaseAll(ctx, reserved)
			if errors.Is(err, inventory.ErrInsufficientStock) {
				return nil, fmt.Errorf("%s: %w", it.Name, inventory.ErrInsufficientStock)
			}
			return nil, fmt.Errorf("reserve %s: %w", it.Name, err)
		}
		reserved = append(reserved, it)
	}
	return reserved, nil
}

func (s *Service) releaseAll(ctx context.Context, items []Item) {
	for _, it := range items {
		if err := s.ledger.Release(ctx, it.MedicineID, it.Quantity); err != nil {
			log.Printf("order: release %d of %s: %v", it.Quantity, it.MedicineID, err)
		}
	}
}

func (s *Service) cancelJob(ctx context.Context, jobID string) {
	// Guarded callbacks make a stale job harmless, so a failed cancel is
	// only logged.
	if err := s.jobs.Cancel(ctx, jobID); err != nil {
		log.Printf("order: cancel job %s: %v", jobID, err)
	}
}

func (s *Service) record(ctx context.Context, o *Order, old Status, note, actor string) {
	err := s.recorder.Append(ctx, timeline.Entry{
		EntityType: timeline.EntityOrder,
		EntityID:   o.ID,
		Status:     string(o.Status),
		Note:       note,
		Actor:      actor,
		CreatedAt:  s.clock.Now(),
	})
	if err != nil {
		log.Printf("order: append timeline for %s: %v", o.ID, err)
	}

	s.emitter.Emit(ctx, notify.Event{
		EntityType: timeline.EntityOrder,
		EntityID:   o.ID,
		OldStatus:  string(old),
		NewStatus:  string(o.Status),
		Note:       note,
		At:         s.clock.Now(),
	})
}
