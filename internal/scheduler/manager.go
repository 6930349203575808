package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Handler runs when a job fires. Handlers must be idempotent and must
// re-check their precondition: a human action may have raced the timer.
type Handler func(ctx context.Context, job Job) error

const (
	defaultFireTimeout  = 20 * time.Second
	defaultPollInterval = 30 * time.Second
)

// Manager keeps one in-memory timer per durable job and a polling pass that
// catches jobs scheduled by other processes or missed across restarts.
// Every registered job fires at least once at or after its FireAt; the
// precondition guards in the handlers absorb the rare duplicate.
type Manager struct {
	store       Store
	clock       clockwork.Clock
	fireTimeout time.Duration

	mu       sync.Mutex
	handlers map[Purpose]Handler
	timers   map[string]clockwork.Timer
	inflight map[string]bool
}

func NewManager(store Store, clock clockwork.Clock) *Manager {
	return &Manager{
		store:       store,
		clock:       clock,
		fireTimeout: defaultFireTimeout,
		handlers:    make(map[Purpose]Handler),
		timers:      make(map[string]clockwork.Timer),
		inflight:    make(map[string]bool),
	}
}

// RegisterHandler binds a purpose to its callback. Must be called before
// RecoverOnStartup or Run.
func (m *Manager) RegisterHandler(p Purpose, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[p] = h
}

// Schedule upserts the durable record and re-arms the in-memory timer.
// Scheduling an existing job ID replaces its deadline.
func (m *Manager) Schedule(ctx context.Context, j Job) error {
	// Postgres keeps microsecond precision; the completion cleanup compares
	// FireAt for equality, so truncate up front.
	j.FireAt = j.FireAt.UTC().Truncate(time.Microsecond)

	if err := m.store.Upsert(ctx, j); err != nil {
		return fmt.Errorf("persist job %s: %w", j.ID, err)
	}

	m.arm(j)
	return nil
}

// ScheduleIfAbsent schedules only when no record with this ID exists.
// Used to bootstrap the self-rescheduling sweeps.
func (m *Manager) ScheduleIfAbsent(ctx context.Context, j Job) error {
	j.FireAt = j.FireAt.UTC().Truncate(time.Microsecond)

	inserted, err := m.store.InsertIfAbsent(ctx, j)
	if err != nil {
		return fmt.Errorf("persist job %s: %w", j.ID, err)
	}
	if inserted {
		m.arm(j)
	}
	return nil
}

// Cancel removes the durable record and disarms the timer. Cancelling a
// job that does not exist is a no-op.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	if err := m.store.Delete(ctx, jobID); err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}

	m.mu.Lock()
	if t, ok := m.timers[jobID]; ok {
		t.Stop()
		delete(m.timers, jobID)
	}
	m.mu.Unlock()
	return nil
}

// RecoverOnStartup rebuilds timers from the durable store. Jobs already due
// fire immediately, sequentially in FireAt order; future jobs are armed for
// their remaining duration.
func (m *Manager) RecoverOnStartup(ctx context.Context) error {
	jobs, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	now := m.clock.Now()
	recovered, fired := 0, 0

	for _, j := range jobs {
		if j.FireAt.After(now) {
			m.arm(j)
			recovered++
			continue
		}
		m.dispatch(j)
		fired++
	}

	log.Printf("scheduler: recovery complete, armed=%d fired=%d", recovered, fired)
	return nil
}

// Run polls the store until ctx is done. The poll pass picks up jobs
// scheduled by other processes, which have no timer armed here.
func (m *Manager) Run(ctx context.Context, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	ticker := m.clock.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.stopTimers()
			return
		case <-ticker.Chan():
			if err := m.PollOnce(ctx); err != nil {
				log.Printf("scheduler: poll error: %v", err)
			}
		}
	}
}

// PollOnce dispatches every due job that has no locally armed timer.
func (m *Manager) PollOnce(ctx context.Context) error {
	due, err := m.store.ListDue(ctx, m.clock.Now())
	if err != nil {
		return fmt.Errorf("list due jobs: %w", err)
	}

	for _, j := range due {
		m.mu.Lock()
		_, armed := m.timers[j.ID]
		m.mu.Unlock()
		if armed {
			// The local timer owns this firing.
			continue
		}
		m.dispatch(j)
	}
	return nil
}

func (m *Manager) arm(j Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[j.ID]; ok {
		t.Stop()
	}

	d := j.FireAt.Sub(m.clock.Now())
	if d < 0 {
		d = 0
	}

	m.timers[j.ID] = m.clock.AfterFunc(d, func() {
		m.mu.Lock()
		delete(m.timers, j.ID)
		m.mu.Unlock()
		m.dispatch(j)
	})
}

// dispatch runs the handler and, on success, clears the durable record.
// A failing handler leaves the record in place so the next poll or the
// next recovery pass retries it.
func (m *Manager) dispatch(j Job) {
	m.mu.Lock()
	if m.inflight[j.ID] {
		m.mu.Unlock()
		return
	}
	m.inflight[j.ID] = true
	h, ok := m.handlers[j.Purpose]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inflight, j.ID)
		m.mu.Unlock()
	}()

	if !ok {
		log.Printf("scheduler: no handler for purpose %q (job %s)", j.Purpose, j.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.fireTimeout)
	defer cancel()

	if err := h(ctx, j); err != nil {
		log.Printf("scheduler: job %s (%s) failed: %v", j.ID, j.Purpose, err)
		return
	}

	// Conditional on FireAt: a handler that re-scheduled itself has moved
	// the deadline, and that new deadline must survive this cleanup.
	if err := m.store.DeleteIfFireAt(ctx, j.ID, j.FireAt); err != nil {
		log.Printf("scheduler: clear job %s: %v", j.ID, err)
	}
}

func (m *Manager) stopTimers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}
