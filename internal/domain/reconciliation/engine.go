package reconciliation

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/finrec/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Engine wires the pipeline stages together:
//
//	payments + invoices -> candidate generation -> scoring -> matching
//	  -> issue detection -> aggregation
//
// Candidate generation and scoring are read-only over the run snapshot
// and fan out across a bounded worker pool. The matching pass is
// inherently sequential because balance consumption must be applied in
// order. The engine performs no I/O; feeding and draining it belongs to
// the application layer.
type Engine struct {
	workers int
}

// EngineOption is a functional option for configuring the Engine
type EngineOption func(*Engine)

// WithWorkerCount bounds the scoring worker pool. Values below 1 are
// ignored.
func WithWorkerCount(n int) EngineOption {
	return func(e *Engine) {
		if n >= 1 {
			e.workers = n
		}
	}
}

// NewEngine creates an engine with workers bounded by CPU count
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request is one reconciliation run's immutable input snapshot. A
// payment arriving after the snapshot is simply picked up by the next
// run.
type Request struct {
	Payments []Payment
	Invoices []Invoice
	Config   Config

	// Now is the run time used by age-based rules and result stamps.
	// Zero means current UTC time; tests pass a fixed value.
	Now time.Time

	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// Reconcile executes one run. Configuration errors fail fast before any
// record is processed. Malformed individual records become issues and
// are excluded; the run still completes. Output is all-or-nothing: a
// cancelled context returns an error and no partial results.
func (e *Engine) Reconcile(ctx context.Context, req Request) (*RunResult, error) {
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	payments, invoices, validationIssues, err := validateRecords(req)
	if err != nil {
		return nil, err
	}

	prescored, err := e.generateAndScore(ctx, req.Config, payments, invoices)
	if err != nil {
		return nil, err
	}

	outcome := NewMatcher(req.Config).Resolve(prescored, now)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	issues := append(validationIssues,
		NewIssueDetector(req.Config).Detect(outcome.Results, payments, invoices, outcome.Allocations, now)...)

	summary := NewAggregator(req.Config).Summarize(
		outcome.Results, issues, payments, invoices, outcome.Allocations,
		now, req.PeriodStart, req.PeriodEnd)

	return &RunResult{
		MatchResults:      outcome.Results,
		UnmatchedInvoices: unmatchedInvoices(invoices, outcome),
		Issues:            issues,
		Summary:           summary,
	}, nil
}

// validateRecords splits the snapshot into valid records and validation
// issues. A non-empty feed in which every record is malformed counts as
// an unreadable feed and aborts the run.
func validateRecords(req Request) ([]*Payment, []*Invoice, []Issue, error) {
	issues := make([]Issue, 0)

	payments := make([]*Payment, 0, len(req.Payments))
	for i := range req.Payments {
		p := &req.Payments[i]
		if err := p.Validate(req.Config.Currency); err != nil {
			issue := NewIssue(IssueTypeInvalidPayment,
				fmt.Sprintf("payment %s excluded from matching: %s", p.ID, err.Error()))
			if p.ID != uuid.Nil {
				issue.RelatedPaymentIDs = []uuid.UUID{p.ID}
			}
			issues = append(issues, issue)
			continue
		}
		payments = append(payments, p)
	}
	if len(req.Payments) > 0 && len(payments) == 0 {
		return nil, nil, nil, fmt.Errorf("payment feed unreadable: %w", shared.ErrEmptyFeed)
	}

	invoices := make([]*Invoice, 0, len(req.Invoices))
	for i := range req.Invoices {
		inv := &req.Invoices[i]
		if err := inv.Validate(req.Config.Currency); err != nil {
			issue := NewIssue(IssueTypeInvalidInvoice,
				fmt.Sprintf("invoice %s excluded from matching: %s", inv.ID, err.Error()))
			if inv.ID != uuid.Nil {
				issue.RelatedInvoiceIDs = []uuid.UUID{inv.ID}
			}
			issues = append(issues, issue)
			continue
		}
		invoices = append(invoices, inv)
	}
	if len(req.Invoices) > 0 && len(invoices) == 0 {
		return nil, nil, nil, fmt.Errorf("invoice feed unreadable: %w", shared.ErrEmptyFeed)
	}

	return payments, invoices, issues, nil
}

// generateAndScore fans candidate generation and scoring out across the
// worker pool. Each worker writes only its own index, so the output is
// deterministic regardless of scheduling.
func (e *Engine) generateAndScore(ctx context.Context, cfg Config, payments []*Payment, invoices []*Invoice) ([]PaymentCandidates, error) {
	generator := NewCandidateGenerator(cfg)
	scorer := NewScorer(cfg)

	prescored := make([]PaymentCandidates, len(payments))
	jobs := make(chan int)

	var wg sync.WaitGroup
	workers := e.workers
	if workers > len(payments) {
		workers = len(payments)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				payment := payments[idx]
				candidates := generator.Generate(payment, invoices)
				scored := make([]ScoredCandidate, 0, len(candidates))
				for _, c := range candidates {
					scored = append(scored, ScoredCandidate{
						Invoice:         c.Invoice,
						PrefilterReason: c.PrefilterReason,
						Score:           scorer.Score(payment, c.Invoice),
					})
				}
				prescored[idx] = PaymentCandidates{Payment: payment, Candidates: scored}
			}
		}()
	}

	cancelled := false
	for i := range payments {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if cancelled || ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return prescored, nil
}

// unmatchedInvoices lists open invoices that received no allocation in
// this run, sorted by id for deterministic output
func unmatchedInvoices(invoices []*Invoice, outcome MatchOutcome) []uuid.UUID {
	ids := make([]uuid.UUID, 0)
	for _, inv := range invoices {
		if !inv.Status.Matchable() || !inv.OutstandingBalance.IsPositive() {
			continue
		}
		if allocated, ok := outcome.Allocations[inv.ID]; ok && allocated.IsPositive() {
			continue
		}
		ids = append(ids, inv.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
