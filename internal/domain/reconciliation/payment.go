package reconciliation

import (
	"encoding/json"
	"time"

	"github.com/finrec/backend/internal/domain/shared"
	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// Gateway represents the channel a payment arrived through
type Gateway string

const (
	GatewayMobileMoney  Gateway = "MOBILE_MONEY"
	GatewayBankTransfer Gateway = "BANK_TRANSFER"
	GatewayCard         Gateway = "CARD"
	GatewayCash         Gateway = "CASH"
	GatewayCheque       Gateway = "CHEQUE"
	GatewayOther        Gateway = "OTHER"
)

// IsValid checks if the gateway is a known value
func (g Gateway) IsValid() bool {
	switch g {
	case GatewayMobileMoney, GatewayBankTransfer, GatewayCard,
		GatewayCash, GatewayCheque, GatewayOther:
		return true
	}
	return false
}

// String returns the string representation
func (g Gateway) String() string {
	return string(g)
}

// AllGateways returns every known gateway value
func AllGateways() []Gateway {
	return []Gateway{
		GatewayMobileMoney, GatewayBankTransfer, GatewayCard,
		GatewayCash, GatewayCheque, GatewayOther,
	}
}

// Payment is a received funds event supplied by the payments-ingestion
// collaborator. The engine never mutates a Payment; it only annotates it
// with a MatchResult.
type Payment struct {
	ID            uuid.UUID
	Reference     string // gateway/transaction reference, not assumed unique
	Amount        valueobject.Money
	ReceivedAt    time.Time
	PayerIdentity string // free-text name/phone/email for customer correlation
	CustomerID    *uuid.UUID
	Gateway       Gateway
	// RawMetadata is an opaque gateway payload. Scoring must never read it;
	// it is carried through untouched so downstream audit tooling can show
	// the original gateway record next to a match.
	RawMetadata json.RawMessage
}

// Validate checks the payment is well-formed enough to enter matching.
// Malformed payments are excluded from assignment and surfaced as issues,
// they never abort a run.
func (p *Payment) Validate(currency valueobject.Currency) error {
	if p.ID == uuid.Nil {
		return shared.NewDomainError("INVALID_PAYMENT", "payment id is required")
	}
	if !p.Amount.IsPositive() {
		return shared.NewDomainError("INVALID_PAYMENT", "payment amount must be positive")
	}
	if p.Amount.Currency() != currency {
		return shared.NewDomainError("INVALID_PAYMENT", "payment currency differs from run currency")
	}
	if p.ReceivedAt.IsZero() {
		return shared.NewDomainError("INVALID_PAYMENT", "payment received_at is required")
	}
	if !p.Gateway.IsValid() {
		return shared.NewDomainError("INVALID_PAYMENT", "unknown payment gateway")
	}
	return nil
}
