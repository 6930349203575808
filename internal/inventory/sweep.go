package inventory

import (
	"context"
	"fmt"
	"log"

	"github.com/jonboulle/clockwork"

	"github.com/medikart/order-lifecycle/internal/notify"
)

// Sweeper is the periodic scan raising low-stock and past-expiry intents.
// It only notifies; restocking and delisting belong to the catalog side.
type Sweeper struct {
	ledger    Ledger
	emitter   notify.Emitter
	clock     clockwork.Clock
	threshold int
}

func NewSweeper(ledger Ledger, emitter notify.Emitter, clock clockwork.Clock, threshold int) *Sweeper {
	return &Sweeper{
		ledger:    ledger,
		emitter:   emitter,
		clock:     clock,
		threshold: threshold,
	}
}

func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.clock.Now()

	low, err := s.ledger.FindLowStock(ctx, s.threshold)
	if err != nil {
		return fmt.Errorf("find low stock: %w", err)
	}
	for _, m := range low {
		s.emitter.Emit(ctx, notify.Event{
			EntityType: "medicine",
			EntityID:   m.MedicineID,
			NewStatus:  "low_stock",
			Note:       fmt.Sprintf("%s down to %d units", m.Name, m.Stock),
			At:         now,
		})
	}

	expired, err := s.ledger.FindExpiring(ctx, now)
	if err != nil {
		return fmt.Errorf("find expired batches: %w", err)
	}
	for _, m := range expired {
		s.emitter.Emit(ctx, notify.Event{
			EntityType: "medicine",
			EntityID:   m.MedicineID,
			NewStatus:  "batch_expired",
			Note:       fmt.Sprintf("%s batch past expiry", m.Name),
			At:         now,
		})
	}

	log.Printf("inventory: sweep complete, low_stock=%d expired=%d", len(low), len(expired))
	return nil
}
