package scheduler

import (
	"context"
	"time"
)

// Store persists jobs so a restart can rebuild the in-memory timers.
// All writes are keyed by the deterministic job ID, making double-schedule
// and double-cancel idempotent by construction.
type Store interface {
	// Upsert inserts the job or, if the ID exists, replaces its FireAt.
	Upsert(ctx context.Context, j Job) error

	// InsertIfAbsent inserts only when the ID is new. Returns whether the
	// row was inserted. Used to bootstrap self-rescheduling sweeps.
	InsertIfAbsent(ctx context.Context, j Job) (bool, error)

	// Delete removes the job; deleting a missing ID is a no-op.
	Delete(ctx context.Context, jobID string) error

	// DeleteIfFireAt removes the job only while its FireAt is unchanged.
	// A handler that re-scheduled itself moved FireAt forward, and the
	// completion cleanup must not wipe the new deadline.
	DeleteIfFireAt(ctx context.Context, jobID string, fireAt time.Time) error

	// List returns every job ordered by FireAt.
	List(ctx context.Context) ([]Job, error)

	// ListDue returns jobs with FireAt at or before now, ordered by FireAt.
	ListDue(ctx context.Context, now time.Time) ([]Job, error)
}
