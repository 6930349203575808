package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is an in-memory Ledger with the same reserve/release
// semantics as the Postgres implementation. Used in tests and local runs.
type MemoryLedger struct {
	mu        sync.Mutex
	medicines map[uuid.UUID]Medicine
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{medicines: make(map[uuid.UUID]Medicine)}
}

// Put inserts or replaces a medicine row.
func (l *MemoryLedger) Put(m Medicine) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.medicines[m.ID] = m
}

func (l *MemoryLedger) Reserve(ctx context.Context, medicineID uuid.UUID, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.medicines[medicineID]
	if !ok {
		return ErrMedicineNotFound
	}
	if m.Stock < qty {
		return ErrInsufficientStock
	}

	m.Stock -= qty
	l.medicines[medicineID] = m
	return nil
}

func (l *MemoryLedger) Release(ctx context.Context, medicineID uuid.UUID, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.medicines[medicineID]
	if !ok {
		return ErrMedicineNotFound
	}

	m.Stock += qty
	l.medicines[medicineID] = m
	return nil
}

func (l *MemoryLedger) Stock(ctx context.Context, medicineID uuid.UUID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.medicines[medicineID]
	if !ok {
		return 0, ErrMedicineNotFound
	}
	return m.Stock, nil
}

func (l *MemoryLedger) GetMedicine(ctx context.Context, medicineID uuid.UUID) (*Medicine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.medicines[medicineID]
	if !ok {
		return nil, ErrMedicineNotFound
	}
	cp := m
	return &cp, nil
}

func (l *MemoryLedger) FindLowStock(ctx context.Context, threshold int) ([]StockLevel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var result []StockLevel
	for _, m := range l.medicines {
		if m.Stock <= threshold {
			result = append(result, stockLevel(m))
		}
	}
	return result, nil
}

func (l *MemoryLedger) FindExpiring(ctx context.Context, now time.Time) ([]StockLevel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var result []StockLevel
	for _, m := range l.medicines {
		if m.ExpiresAt != nil && m.ExpiresAt.Before(now) {
			result = append(result, stockLevel(m))
		}
	}
	return result, nil
}

func stockLevel(m Medicine) StockLevel {
	return StockLevel{
		MedicineID: m.ID,
		PharmacyID: m.PharmacyID,
		Name:       m.Name,
		Stock:      m.Stock,
		ExpiresAt:  m.ExpiresAt,
	}
}
