package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	id := uuid.New()
	ledger.Put(Medicine{ID: id, Name: "Paracetamol 500mg", Stock: 5})

	require.NoError(t, ledger.Reserve(ctx, id, 2))

	stock, err := ledger.Stock(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, stock)

	require.NoError(t, ledger.Release(ctx, id, 2))

	stock, err = ledger.Stock(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, stock)
}

func TestReserveInsufficientStock(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	id := uuid.New()
	ledger.Put(Medicine{ID: id, Stock: 1})

	err := ledger.Reserve(ctx, id, 2)
	require.ErrorIs(t, err, ErrInsufficientStock)

	// The failed reserve must not have touched the count.
	stock, err := ledger.Stock(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, stock)
}

func TestReserveUnknownMedicine(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	err := ledger.Reserve(ctx, uuid.New(), 1)
	require.ErrorIs(t, err, ErrMedicineNotFound)
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	id := uuid.New()
	ledger.Put(Medicine{ID: id, Stock: 5})

	require.ErrorIs(t, ledger.Reserve(ctx, id, 0), ErrInvalidQuantity)
	require.ErrorIs(t, ledger.Release(ctx, id, -1), ErrInvalidQuantity)
}

func TestConcurrentReserveLastUnit(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	id := uuid.New()
	ledger.Put(Medicine{ID: id, Stock: 1})

	const callers = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, losses := 0, 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ledger.Reserve(ctx, id, 1)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, ErrInsufficientStock)
				losses++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one caller must get the last unit")
	assert.Equal(t, callers-1, losses)

	stock, err := ledger.Stock(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, stock, "stock must never go negative")
}

func TestFindLowStockAndExpiring(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	now := time.Now()
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	low := uuid.New()
	ledger.Put(Medicine{ID: low, Name: "low", Stock: 2, ExpiresAt: &future})
	ok := uuid.New()
	ledger.Put(Medicine{ID: ok, Name: "ok", Stock: 100, ExpiresAt: &future})
	stale := uuid.New()
	ledger.Put(Medicine{ID: stale, Name: "stale", Stock: 50, ExpiresAt: &past})

	lowStock, err := ledger.FindLowStock(ctx, 10)
	require.NoError(t, err)
	require.Len(t, lowStock, 1)
	assert.Equal(t, low, lowStock[0].MedicineID)

	expiring, err := ledger.FindExpiring(ctx, now)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, stale, expiring[0].MedicineID)
}
