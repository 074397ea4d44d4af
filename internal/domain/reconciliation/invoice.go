package reconciliation

import (
	"time"

	"github.com/finrec/backend/internal/domain/shared"
	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// InvoiceStatus represents the lifecycle state of an invoice as seen by
// the reconciliation view
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPartial   InvoiceStatus = "PARTIAL"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// IsValid checks if the status is a known value
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPartial,
		InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation
func (s InvoiceStatus) String() string {
	return string(s)
}

// Matchable returns true if payments may be matched against an invoice
// in this status
func (s InvoiceStatus) Matchable() bool {
	return s != InvoiceStatusCancelled && s != InvoiceStatusPaid
}

// Invoice is the minimal reconciliation projection of an invoice.
// The invoice-management collaborator owns the full record; it applies
// matched amounts back to paid/outstanding after the engine returns.
type Invoice struct {
	ID                 uuid.UUID
	InvoiceNumber      string
	CustomerID         uuid.UUID
	CustomerName       string
	CustomerEmail      string
	CustomerPhone      string
	InvoiceTotal       valueobject.Money
	AmountPaidSoFar    valueobject.Money
	OutstandingBalance valueobject.Money
	DueDate            *time.Time
	IssuedAt           time.Time
	Status             InvoiceStatus
	// ReferenceHints are additional known references for this invoice
	// (e.g. a gateway paybill account string) used by the reference signal.
	ReferenceHints []string
}

// Validate checks the invoice projection is well-formed enough to be a
// matching target
func (inv *Invoice) Validate(currency valueobject.Currency) error {
	if inv.ID == uuid.Nil {
		return shared.NewDomainError("INVALID_INVOICE", "invoice id is required")
	}
	if !inv.Status.IsValid() {
		return shared.NewDomainError("INVALID_INVOICE", "unknown invoice status")
	}
	if inv.OutstandingBalance.Currency() != currency {
		return shared.NewDomainError("INVALID_INVOICE", "invoice currency differs from run currency")
	}
	if inv.OutstandingBalance.IsNegative() {
		return shared.NewDomainError("INVALID_INVOICE", "outstanding balance must not be negative")
	}
	if inv.IssuedAt.IsZero() {
		return shared.NewDomainError("INVALID_INVOICE", "invoice issued_at is required")
	}
	return nil
}

// KnownReferences returns every reference string the invoice can be
// matched against: the invoice number plus any hints.
func (inv *Invoice) KnownReferences() []string {
	refs := make([]string, 0, len(inv.ReferenceHints)+1)
	if inv.InvoiceNumber != "" {
		refs = append(refs, inv.InvoiceNumber)
	}
	refs = append(refs, inv.ReferenceHints...)
	return refs
}
