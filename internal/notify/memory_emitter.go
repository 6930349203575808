package notify

import (
	"context"
	"log"
	"sync"
)

// LogEmitter writes intents to the process log. Used when Redis is absent.
type LogEmitter struct{}

var _ Emitter = LogEmitter{}

func (LogEmitter) Emit(ctx context.Context, ev Event) {
	log.Printf("notify: %s %s %s -> %s", ev.EntityType, ev.EntityID, ev.OldStatus, ev.NewStatus)
}

// MemoryEmitter records intents for assertions in tests.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []Event
}

var _ Emitter = (*MemoryEmitter)(nil)

func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

func (e *MemoryEmitter) Emit(ctx context.Context, ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *MemoryEmitter) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}
