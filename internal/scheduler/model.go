package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Purpose identifies what a job does when it fires. Handlers are registered
// per purpose.
type Purpose string

const (
	PurposeApprovalExpiry     Purpose = "approval-expiry"
	PurposeConfirmationExpiry Purpose = "confirmation-expiry"
	PurposeRefillDue          Purpose = "refill-due"
	PurposeExpirySweep        Purpose = "expiry-sweep"
	PurposeInventorySweep     Purpose = "inventory-sweep"
)

// Job is one durable deadline. The ID is deterministic per entity and
// purpose so that scheduling twice upserts rather than duplicates, and
// cancelling is a keyed delete.
type Job struct {
	ID       string
	FireAt   time.Time
	Purpose  Purpose
	EntityID uuid.UUID // uuid.Nil for sweeps
}

func OrderApprovalJobID(orderID uuid.UUID) string {
	return fmt.Sprintf("order:%s:approval", orderID)
}

func OrderConfirmationJobID(orderID uuid.UUID) string {
	return fmt.Sprintf("order:%s:confirmation", orderID)
}

func PrescriptionRefillJobID(prescriptionID uuid.UUID) string {
	return fmt.Sprintf("prescription:%s:refill", prescriptionID)
}

const (
	PrescriptionExpirySweepJobID = "sweep:prescription-expiry"
	InventorySweepJobID          = "sweep:inventory"
)
