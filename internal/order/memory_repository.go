package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository mirrors the Postgres repository's CAS semantics in
// memory. Used in tests and local runs.
type MemoryRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]Order
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[uuid.UUID]Order)}
}

func (r *MemoryRepository) Create(ctx context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now
	r.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func (r *MemoryRepository) Update(ctx context.Context, o *Order, expected Status) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[o.ID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if stored.Status != expected {
		return nil, ErrStatusConflict
	}

	updated := cloneOrder(*o)
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = time.Now()
	r.orders[o.ID] = updated

	cp := cloneOrder(updated)
	return &cp, nil
}

func (r *MemoryRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Order
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			result = append(result, cloneOrder(o))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })

	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func cloneOrder(o Order) Order {
	cp := o
	cp.Items = append([]Item(nil), o.Items...)
	if o.ApprovalDeadline != nil {
		t := *o.ApprovalDeadline
		cp.ApprovalDeadline = &t
	}
	if o.ConfirmationDeadline != nil {
		t := *o.ConfirmationDeadline
		cp.ConfirmationDeadline = &t
	}
	if o.PrescriptionID != nil {
		id := *o.PrescriptionID
		cp.PrescriptionID = &id
	}
	return cp
}
