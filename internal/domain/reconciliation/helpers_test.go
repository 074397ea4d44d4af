package reconciliation

import (
	"time"

	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// runTime is the fixed "now" used across engine tests so age-based
// rules and stamps stay deterministic
var runTime = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// day returns runTime shifted by n days
func day(n int) time.Time {
	return runTime.AddDate(0, 0, n)
}

func kes(amount int64) valueobject.Money {
	return valueobject.NewMoneyKES(decimal.NewFromInt(amount))
}

type paymentOpt func(*Payment)

func withReference(ref string) paymentOpt {
	return func(p *Payment) { p.Reference = ref }
}

func withCustomer(id uuid.UUID) paymentOpt {
	return func(p *Payment) { p.CustomerID = &id }
}

func withPayerIdentity(identity string) paymentOpt {
	return func(p *Payment) { p.PayerIdentity = identity }
}

func withReceivedAt(at time.Time) paymentOpt {
	return func(p *Payment) { p.ReceivedAt = at }
}

func makePayment(amount int64, opts ...paymentOpt) Payment {
	p := Payment{
		ID:         uuid.New(),
		Amount:     kes(amount),
		ReceivedAt: day(-5),
		Gateway:    GatewayMobileMoney,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

type invoiceOpt func(*Invoice)

func withStatus(status InvoiceStatus) invoiceOpt {
	return func(inv *Invoice) { inv.Status = status }
}

func withIssuedAt(at time.Time) invoiceOpt {
	return func(inv *Invoice) { inv.IssuedAt = at }
}

func withInvoiceCustomer(id uuid.UUID) invoiceOpt {
	return func(inv *Invoice) { inv.CustomerID = id }
}

func withContact(name, email, phone string) invoiceOpt {
	return func(inv *Invoice) {
		inv.CustomerName = name
		inv.CustomerEmail = email
		inv.CustomerPhone = phone
	}
}

func withDueDate(at time.Time) invoiceOpt {
	return func(inv *Invoice) { inv.DueDate = &at }
}

func makeInvoice(number string, outstanding int64, opts ...invoiceOpt) Invoice {
	inv := Invoice{
		ID:                 uuid.New(),
		InvoiceNumber:      number,
		CustomerID:         uuid.New(),
		InvoiceTotal:       kes(outstanding),
		AmountPaidSoFar:    kes(0),
		OutstandingBalance: kes(outstanding),
		IssuedAt:           day(-10),
		Status:             InvoiceStatusSent,
	}
	for _, opt := range opts {
		opt(&inv)
	}
	return inv
}

func invoicePtrs(invoices ...Invoice) []*Invoice {
	out := make([]*Invoice, len(invoices))
	for i := range invoices {
		out[i] = &invoices[i]
	}
	return out
}
