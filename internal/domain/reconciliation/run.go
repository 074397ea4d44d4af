package reconciliation

import (
	"time"

	"github.com/finrec/backend/internal/domain/shared"
	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a reconciliation run
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// IsValid checks if the status is a known value
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true once the run can no longer change state
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run is a single reconciliation pass over a payment and invoice snapshot.
// Results, issues and the summary hang off it; a failed run keeps nothing
// but its failure reason.
type Run struct {
	ID            uuid.UUID
	Status        RunStatus
	Currency      valueobject.Currency
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
	PaymentCount  int
	InvoiceCount  int
	StartedAt     time.Time
	CompletedAt   *time.Time
	FailureReason string
	Summary       *RunSummary
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewRun creates a pending run over the given period
func NewRun(currency valueobject.Currency, periodStart, periodEnd *time.Time, now time.Time) *Run {
	return &Run{
		ID:          uuid.New(),
		Status:      RunStatusPending,
		Currency:    currency,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Start transitions the run to RUNNING
func (r *Run) Start(now time.Time) error {
	if r.Status != RunStatusPending {
		return shared.NewDomainError("INVALID_RUN_STATE",
			"only a pending run can be started")
	}
	r.Status = RunStatusRunning
	r.StartedAt = now
	r.UpdatedAt = now
	return nil
}

// Complete records the run result and transitions to COMPLETED
func (r *Run) Complete(summary RunSummary, paymentCount, invoiceCount int, now time.Time) error {
	if r.Status != RunStatusRunning {
		return shared.NewDomainError("INVALID_RUN_STATE",
			"only a running run can complete")
	}
	r.Status = RunStatusCompleted
	r.Summary = &summary
	r.PaymentCount = paymentCount
	r.InvoiceCount = invoiceCount
	r.CompletedAt = &now
	r.UpdatedAt = now
	return nil
}

// Fail aborts the run with a reason. The engine commits nothing on failure,
// so the run record is the only trace left behind.
func (r *Run) Fail(reason string, now time.Time) error {
	if r.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_RUN_STATE",
			"run already finished")
	}
	r.Status = RunStatusFailed
	r.FailureReason = reason
	r.CompletedAt = &now
	r.UpdatedAt = now
	return nil
}

// ReviewOutcome is a human decision on a needs_review match result
type ReviewOutcome string

const (
	ReviewOutcomeConfirmed ReviewOutcome = "CONFIRMED"
	ReviewOutcomeRejected  ReviewOutcome = "REJECTED"
)

// IsValid checks if the outcome is a known value
func (o ReviewOutcome) IsValid() bool {
	return o == ReviewOutcomeConfirmed || o == ReviewOutcomeRejected
}

// ReviewDecision records who resolved a needs_review result and how
type ReviewDecision struct {
	ID            uuid.UUID
	MatchResultID uuid.UUID
	Outcome       ReviewOutcome
	Reviewer      string
	Note          string
	DecidedAt     time.Time
}

// ApplyReview resolves a needs_review result. Confirming allocates the
// approved amount and flips the state to matched or partial depending on
// whether it settles the invoice in full; rejecting returns the payment to
// the unmatched pool. Any other starting state is an error.
func (mr *MatchResult) ApplyReview(outcome ReviewOutcome, approvedAmount valueobject.Money, settlesInvoice bool) error {
	if mr.State != MatchStateNeedsReview {
		return shared.NewDomainError("NOT_REVIEWABLE",
			"only a needs_review result can be reviewed")
	}
	if !outcome.IsValid() {
		return shared.NewDomainError("INVALID_REVIEW_OUTCOME",
			"review outcome must be CONFIRMED or REJECTED")
	}

	if outcome == ReviewOutcomeRejected {
		mr.State = MatchStateUnmatched
		mr.MatchedAmount = valueobject.Zero(mr.MatchedAmount.Currency())
		return nil
	}

	if mr.InvoiceID == nil {
		return shared.NewDomainError("NOT_REVIEWABLE",
			"cannot confirm a result with no candidate invoice")
	}
	mr.MatchedAmount = approvedAmount
	if settlesInvoice {
		mr.State = MatchStateMatched
	} else {
		mr.State = MatchStatePartial
	}
	return nil
}
