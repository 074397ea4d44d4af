package reconciliation

import (
	"time"

	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// MatchState is the terminal classification of a payment after a run
type MatchState string

const (
	MatchStateMatched     MatchState = "MATCHED"
	MatchStatePartial     MatchState = "PARTIAL"
	MatchStateUnmatched   MatchState = "UNMATCHED"
	MatchStateNeedsReview MatchState = "NEEDS_REVIEW"
)

// IsValid checks if the state is a known value
func (s MatchState) IsValid() bool {
	switch s {
	case MatchStateMatched, MatchStatePartial, MatchStateUnmatched, MatchStateNeedsReview:
		return true
	}
	return false
}

// String returns the string representation
func (s MatchState) String() string {
	return string(s)
}

// Allocates returns true if the state commits money against an invoice
func (s MatchState) Allocates() bool {
	return s == MatchStateMatched || s == MatchStatePartial
}

// Signal and prefilter reason names, most significant first in MatchResult.Reasons.
// These are the audit vocabulary: a human reviewing a match sees exactly
// these strings.
const (
	ReasonReferenceExact    = "reference_exact_match"
	ReasonReferencePartial  = "reference_partial_match"
	ReasonAmountExact       = "amount_exact_match"
	ReasonAmountPartial     = "amount_partial_match"
	ReasonDateProximity     = "date_proximity"
	ReasonCustomerID        = "customer_id_match"
	ReasonCustomerFuzzy     = "customer_identity_fuzzy_match"
	ReasonNoCandidate       = "no_candidate_invoice"
	ReasonOverpaymentReview = "overpayment_requires_split_decision"
	ReasonInvoiceConsumed   = "invoice_consumed_earlier_in_run"
)

// MatchResult is the engine output, exactly one per input payment per run
type MatchResult struct {
	ID            uuid.UUID
	PaymentID     uuid.UUID
	InvoiceID     *uuid.UUID
	State         MatchState
	Confidence    float64 // rounded to 4 decimal places
	MatchedAmount valueobject.Money
	Reasons       []string
	CreatedAt     time.Time
}

// IssueType identifies a detection rule
type IssueType string

const (
	IssueTypeDuplicateReference IssueType = "DUPLICATE_REFERENCE"
	IssueTypeLargeUnmatched     IssueType = "LARGE_UNMATCHED"
	IssueTypeStaleUnmatched     IssueType = "STALE_UNMATCHED"
	IssueTypeOverdueNoPayment   IssueType = "OVERDUE_INVOICE_NO_PAYMENTS"
	IssueTypeNearEqualCollision IssueType = "NEAR_EQUAL_AMOUNT_COLLISION"
	IssueTypeInvalidPayment     IssueType = "INVALID_PAYMENT_RECORD"
	IssueTypeInvalidInvoice     IssueType = "INVALID_INVOICE_RECORD"
)

// IssueSeverity is the fixed severity for an issue type
type IssueSeverity string

const (
	SeverityHigh   IssueSeverity = "HIGH"
	SeverityMedium IssueSeverity = "MEDIUM"
	SeverityLow    IssueSeverity = "LOW"
)

// Severity returns the fixed severity mapping for the issue type.
// Severities are per-rule constants so runs are reproducible.
func (t IssueType) Severity() IssueSeverity {
	switch t {
	case IssueTypeDuplicateReference, IssueTypeLargeUnmatched:
		return SeverityHigh
	case IssueTypeStaleUnmatched, IssueTypeOverdueNoPayment,
		IssueTypeInvalidPayment, IssueTypeInvalidInvoice:
		return SeverityMedium
	case IssueTypeNearEqualCollision:
		return SeverityLow
	}
	return SeverityLow
}

// Issue is a detected data-quality or business-risk anomaly. It is not a
// match decision and is never auto-resolved.
type Issue struct {
	ID                uuid.UUID
	Type              IssueType
	Severity          IssueSeverity
	Description       string
	RelatedPaymentIDs []uuid.UUID
	RelatedInvoiceIDs []uuid.UUID
	AmountInvolved    *valueobject.Money
}

// NewIssue creates an issue with its fixed severity applied. The ID is
// derived from the type and description so that identical runs produce
// identical issues.
func NewIssue(t IssueType, description string) Issue {
	return Issue{
		ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(string(t)+":"+description)),
		Type:        t,
		Severity:    t.Severity(),
		Description: description,
	}
}

// RunSummary aggregates one reconciliation pass
type RunSummary struct {
	GeneratedAt time.Time
	PeriodStart *time.Time
	PeriodEnd   *time.Time

	TotalPayments    int
	MatchedCount     int
	PartialCount     int
	UnmatchedCount   int
	NeedsReviewCount int

	MatchedAmount     valueobject.Money
	PartialAmount     valueobject.Money
	UnmatchedAmount   valueobject.Money
	NeedsReviewAmount valueobject.Money

	// MatchRate is (matched + partial) / total payments as a percentage,
	// rounded to 1 decimal place. Zero payments yields 0, never NaN.
	MatchRate float64

	// TotalOutstanding sums outstanding balances over invoices that
	// received zero or partial allocation in this run.
	TotalOutstanding valueobject.Money

	IssueCount         int
	HighSeverityIssues int
}

// RunResult is the complete output of one reconciliation run
type RunResult struct {
	MatchResults      []MatchResult
	UnmatchedInvoices []uuid.UUID
	Issues            []Issue
	Summary           RunSummary
}
