package timeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRecorder struct {
	mu      sync.Mutex
	nextID  int64
	entries []Entry
}

var _ Recorder = (*MemoryRecorder)(nil)

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{nextID: 1}
}

func (r *MemoryRecorder) Append(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.ID = r.nextID
	r.nextID++
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *MemoryRecorder) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Entry
	for _, e := range r.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			result = append(result, e)
		}
	}
	return result, nil
}
