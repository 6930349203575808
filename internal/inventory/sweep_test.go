package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medikart/order-lifecycle/internal/notify"
)

func TestSweepRaisesIntents(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ledger := NewMemoryLedger()
	emitter := notify.NewMemoryEmitter()

	future := clock.Now().Add(30 * 24 * time.Hour)
	past := clock.Now().Add(-time.Hour)

	low := uuid.New()
	ledger.Put(Medicine{ID: low, Name: "Insulin Glargine", Stock: 3, ExpiresAt: &future})
	healthy := uuid.New()
	ledger.Put(Medicine{ID: healthy, Name: "Paracetamol 500mg", Stock: 400, ExpiresAt: &future})
	stale := uuid.New()
	ledger.Put(Medicine{ID: stale, Name: "Amoxicillin 250mg", Stock: 60, ExpiresAt: &past})

	sweeper := NewSweeper(ledger, emitter, clock, 10)
	require.NoError(t, sweeper.Sweep(ctx))

	events := emitter.Events()
	require.Len(t, events, 2)

	byID := make(map[uuid.UUID]notify.Event)
	for _, ev := range events {
		byID[ev.EntityID] = ev
	}

	require.Contains(t, byID, low)
	assert.Equal(t, "low_stock", byID[low].NewStatus)

	require.Contains(t, byID, stale)
	assert.Equal(t, "batch_expired", byID[stale].NewStatus)

	assert.NotContains(t, byID, healthy)
}
