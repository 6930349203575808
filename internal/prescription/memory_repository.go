package prescription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu            sync.Mutex
	prescriptions map[uuid.UUID]Prescription
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{prescriptions: make(map[uuid.UUID]Prescription)}
}

func (r *MemoryRepository) Create(ctx context.Context, p *Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	r.prescriptions[p.ID] = clonePrescription(*p)
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.prescriptions[id]
	if !ok {
		return nil, ErrPrescriptionNotFound
	}
	cp := clonePrescription(p)
	return &cp, nil
}

func (r *MemoryRepository) Update(ctx context.Context, p *Prescription, expected Status) (*Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.prescriptions[p.ID]
	if !ok {
		return nil, ErrPrescriptionNotFound
	}
	if stored.Status != expected {
		return nil, ErrStatusConflict
	}

	updated := clonePrescription(*p)
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = time.Now()
	r.prescriptions[p.ID] = updated

	cp := clonePrescription(updated)
	return &cp, nil
}

func (r *MemoryRepository) FindExpired(ctx context.Context, now time.Time) ([]Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Prescription
	for _, p := range r.prescriptions {
		if p.Validity.Before(now) && p.Status != StatusExpired {
			result = append(result, clonePrescription(p))
		}
	}
	return result, nil
}

func clonePrescription(p Prescription) Prescription {
	cp := p
	cp.Medicines = append([]RequestedMedicine(nil), p.Medicines...)
	if p.Recurring != nil {
		rec := *p.Recurring
		cp.Recurring = &rec
	}
	if p.ReviewerID != nil {
		id := *p.ReviewerID
		cp.ReviewerID = &id
	}
	return cp
}
