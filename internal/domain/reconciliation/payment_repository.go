package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentRepository loads the payment side of a reconciliation snapshot.
// Ingestion happens upstream; the engine only ever reads.
type PaymentRepository interface {
	// FindForPeriod returns payments received within the given bounds,
	// ordered by received_at ascending. Nil bounds are open-ended.
	FindForPeriod(ctx context.Context, start, end *time.Time) ([]Payment, error)

	// FindByID returns the payment or nil when not found
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// Save persists a payment record
	Save(ctx context.Context, payment *Payment) error
}
