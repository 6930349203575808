package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is a notification intent: the fact that an entity changed status.
// Delivery (SMS/email/push) is someone else's problem; the lifecycle engine
// only emits the intent, fire-and-forget.
type Event struct {
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	OldStatus  string    `json:"old_status"`
	NewStatus  string    `json:"new_status"`
	Note       string    `json:"note,omitempty"`
	At         time.Time `json:"at"`
}

// Emitter publishes intents. Implementations log failures instead of
// returning them; a lost notification never fails a transition.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}
