package timeline

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EntityOrder        = "order"
	EntityPrescription = "prescription"

	// ActorSystem marks entries written by timer callbacks, distinguishing
	// auto-cancellation from human-initiated actions.
	ActorSystem = "system"
)

// Entry is one row of the append-only history kept per order/prescription.
type Entry struct {
	ID         int64
	EntityType string
	EntityID   uuid.UUID
	Status     string
	Note       string
	Actor      string
	CreatedAt  time.Time
}

// Recorder appends and reads history. Append failures never fail the
// transition that produced them; callers log and carry on.
type Recorder interface {
	Append(ctx context.Context, e Entry) error
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]Entry, error)
}
