package reconciliation

import (
	"context"

	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// InvoiceRepository loads the invoice side of a reconciliation snapshot.
// Invoices are a read model synced from the billing system; only the
// snapshot fields the engine scores against are stored here.
type InvoiceRepository interface {
	// FindMatchable returns invoices the engine may allocate against:
	// status not cancelled or fully paid, ordered by issued_at ascending
	FindMatchable(ctx context.Context) ([]Invoice, error)

	// FindByID returns the invoice or nil when not found
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// Save upserts an invoice snapshot
	Save(ctx context.Context, invoice *Invoice) error

	// ApplyAllocation increases amount_paid_so_far and decreases the
	// outstanding balance by the given amount, within the caller's
	// transaction when one is active
	ApplyAllocation(ctx context.Context, invoiceID uuid.UUID, amount valueobject.Money) error
}
