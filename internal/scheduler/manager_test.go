package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingHandler tallies firings per job ID.
type countingHandler struct {
	mu    sync.Mutex
	fired map[string]int
	err   error
}

func newCountingHandler() *countingHandler {
	return &countingHandler{fired: make(map[string]int)}
}

func (h *countingHandler) handle(ctx context.Context, j Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fired[j.ID]++
	return h.err
}

func (h *countingHandler) count(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fired[jobID]
}

func newTestManager() (*Manager, *MemoryStore, *clockwork.FakeClock, *countingHandler) {
	store := NewMemoryStore()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	mgr := NewManager(store, clock)
	h := newCountingHandler()
	mgr.RegisterHandler(PurposeApprovalExpiry, h.handle)
	return mgr, store, clock, h
}

func TestScheduleUpsertsDurableRecord(t *testing.T) {
	ctx := context.Background()
	mgr, store, clock, _ := newTestManager()

	orderID := uuid.New()
	jobID := OrderApprovalJobID(orderID)

	require.NoError(t, mgr.Schedule(ctx, Job{
		ID:       jobID,
		FireAt:   clock.Now().Add(10 * time.Minute),
		Purpose:  PurposeApprovalExpiry,
		EntityID: orderID,
	}))

	jobs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, jobID, jobs[0].ID)

	// Scheduling the same ID again replaces the deadline, not duplicates.
	later := clock.Now().Add(20 * time.Minute)
	require.NoError(t, mgr.Schedule(ctx, Job{
		ID:       jobID,
		FireAt:   later,
		Purpose:  PurposeApprovalExpiry,
		EntityID: orderID,
	}))

	jobs, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].FireAt.Equal(later.UTC().Truncate(time.Microsecond)))
}

func TestCancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mgr, store, clock, h := newTestManager()

	orderID := uuid.New()
	jobID := OrderApprovalJobID(orderID)
	require.NoError(t, mgr.Schedule(ctx, Job{
		ID:      jobID,
		FireAt:  clock.Now().Add(time.Minute),
		Purpose: PurposeApprovalExpiry,
	}))

	require.NoError(t, mgr.Cancel(ctx, jobID))
	require.NoError(t, mgr.Cancel(ctx, jobID))

	jobs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	// A cancelled timer must not fire.
	clock.Advance(2 * time.Minute)
	assert.Equal(t, 0, h.count(jobID))
}

func TestArmedTimerFires(t *testing.T) {
	ctx := context.Background()
	mgr, store, clock, h := newTestManager()

	jobID := OrderApprovalJobID(uuid.New())
	require.NoError(t, mgr.Schedule(ctx, Job{
		ID:      jobID,
		FireAt:  clock.Now().Add(time.Minute),
		Purpose: PurposeApprovalExpiry,
	}))

	clock.Advance(time.Minute)

	require.Eventually(t, func() bool { return h.count(jobID) == 1 },
		2*time.Second, 10*time.Millisecond)

	// Success clears the durable record.
	require.Eventually(t, func() bool {
		jobs, err := store.List(ctx)
		return err == nil && len(jobs) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecoveryFiresPastDueExactlyOnce(t *testing.T) {
	ctx := context.Background()
	mgr, store, clock, h := newTestManager()

	// Simulate a job persisted before a crash, already past due.
	jobID := OrderApprovalJobID(uuid.New())
	require.NoError(t, store.Upsert(ctx, Job{
		ID:      jobID,
		FireAt:  clock.Now().Add(-time.Hour),
		Purpose: PurposeApprovalExpiry,
	}))

	require.NoError(t, mgr.RecoverOnStartup(ctx))
	assert.Equal(t, 1, h.count(jobID))

	// The record is gone, so a second recovery pass finds nothing.
	require.NoError(t, mgr.RecoverOnStartup(ctx))
	assert.Equal(t, 1, h.count(jobID))
}

func TestRecoveryArmsFutureJobs(t *testing.T) {
	ctx := context.Background()
	mgr, store, clock, h := newTestManager()

	jobID := OrderApprovalJobID(uuid.New())
	require.NoError(t, store.Upsert(ctx, Job{
		ID:      jobID,
		FireAt:  clock.Now().Add(30 * time.Minute),
		Purpose: PurposeApprovalExpiry,
	}))

	require.NoError(t, mgr.RecoverOnStartup(ctx))
	assert.Equal(t, 0, h.count(jobID), "future job must not fire at recovery")

	clock.Advance(30 * time.Minute)
	require.Eventually(t, func() bool { return h.count(jobID) == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestPollDispatchesJobsFromOtherProcesses(t *testing.T) {
	ctx := context.Background()
	mgr, store, clock, h := newTestManager()

	// A job written straight to the store has no local timer, as if another
	// process scheduled it.
	jobID := OrderApprovalJobID(uuid.New())
	require.NoError(t, store.Upsert(ctx, Job{
		ID:      jobID,
		FireAt:  clock.Now().Add(-time.Second),
		Purpose: PurposeApprovalExpiry,
	}))

	require.NoError(t, mgr.PollOnce(ctx))
	assert.Equal(t, 1, h.count(jobID))

	jobs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestFailedHandlerKeepsRecordForRetry(t *testing.T) {
	ctx := context.Background()
	mgr, store, clock, h := newTestManager()
	h.err = errors.New("downstream unavailable")

	jobID := OrderApprovalJobID(uuid.New())
	require.NoError(t, store.Upsert(ctx, Job{
		ID:      jobID,
		FireAt:  clock.Now().Add(-time.Second),
		Purpose: PurposeApprovalExpiry,
	}))

	require.NoError(t, mgr.PollOnce(ctx))
	assert.Equal(t, 1, h.count(jobID))

	jobs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1, "failed job must survive for the next poll")

	h.mu.Lock()
	h.err = nil
	h.mu.Unlock()

	require.NoError(t, mgr.PollOnce(ctx))
	assert.Equal(t, 2, h.count(jobID))

	jobs, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSelfReschedulingJobSurvivesCleanup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	mgr := NewManager(store, clock)

	interval := 24 * time.Hour
	fires := 0
	mgr.RegisterHandler(PurposeExpirySweep, func(ctx context.Context, j Job) error {
		fires++
		return mgr.Schedule(ctx, Job{
			ID:      j.ID,
			FireAt:  clock.Now().Add(interval),
			Purpose: j.Purpose,
		})
	})

	require.NoError(t, store.Upsert(ctx, Job{
		ID:      PrescriptionExpirySweepJobID,
		FireAt:  clock.Now().Add(-time.Minute),
		Purpose: PurposeExpirySweep,
	}))

	require.NoError(t, mgr.PollOnce(ctx))
	require.Equal(t, 1, fires)

	// The handler moved the deadline forward; the post-fire cleanup must not
	// delete the rescheduled record.
	jobs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].FireAt.After(clock.Now()))
}

func TestScheduleIfAbsentKeepsExistingDeadline(t *testing.T) {
	ctx := context.Background()
	mgr, store, clock, _ := newTestManager()

	first := clock.Now().Add(time.Hour)
	require.NoError(t, mgr.ScheduleIfAbsent(ctx, Job{
		ID:      InventorySweepJobID,
		FireAt:  first,
		Purpose: PurposeInventorySweep,
	}))
	require.NoError(t, mgr.ScheduleIfAbsent(ctx, Job{
		ID:      InventorySweepJobID,
		FireAt:  clock.Now().Add(10 * time.Hour),
		Purpose: PurposeInventorySweep,
	}))

	jobs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].FireAt.Equal(first.UTC().Truncate(time.Microsecond)))
}
