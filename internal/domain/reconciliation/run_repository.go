package reconciliation

import (
	"context"

	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// RunRepository persists reconciliation runs and their output. SaveResult
// is the only write path for match results and issues: a run's output
// lands atomically or not at all.
type RunRepository interface {
	// Create persists a new run record
	Create(ctx context.Context, run *Run) error

	// Update persists run state transitions
	Update(ctx context.Context, run *Run) error

	// SaveResult persists the complete run output in one transaction:
	// the run transition to COMPLETED, every match result, every issue,
	// and the invoice allocations
	SaveResult(ctx context.Context, run *Run, result *RunResult) error

	// FindByID returns the run or nil when not found
	FindByID(ctx context.Context, id uuid.UUID) (*Run, error)

	// FindLatestCompleted returns the most recent COMPLETED run or nil
	FindLatestCompleted(ctx context.Context) (*Run, error)

	// FindMatchResults returns all match results for a run, ordered by
	// payment received_at then payment id
	FindMatchResults(ctx context.Context, runID uuid.UUID) ([]MatchResult, error)

	// FindMatchResultByID returns a single match result or nil
	FindMatchResultByID(ctx context.Context, id uuid.UUID) (*MatchResult, error)

	// FindIssues returns all issues for a run, optionally filtered by
	// severity (empty string means all)
	FindIssues(ctx context.Context, runID uuid.UUID, severity IssueSeverity) ([]Issue, error)

	// SumAllocatedForInvoice sums matched amounts committed against an
	// invoice across all completed runs and confirmed reviews
	SumAllocatedForInvoice(ctx context.Context, invoiceID uuid.UUID) (valueobject.Money, error)

	// SaveReviewDecision persists the review transition of a match
	// result together with its audit record and, when confirmed, the
	// resulting invoice allocation, in one transaction
	SaveReviewDecision(ctx context.Context, result *MatchResult, decision *ReviewDecision) error
}
