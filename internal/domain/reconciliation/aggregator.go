package reconciliation

import (
	"time"

	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregator computes run-level statistics. It is a pure function over
// the completed results: no side effects, no I/O, identical inputs give
// identical summaries, so downstream reporting can trust it as the
// single source of truth for a run's match rate.
type Aggregator struct {
	cfg Config
}

// NewAggregator creates an aggregator for the given policy
func NewAggregator(cfg Config) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Summarize computes the RunSummary for a completed run. generatedAt and
// the optional period bounds are carried through verbatim.
func (a *Aggregator) Summarize(
	results []MatchResult,
	issues []Issue,
	payments []*Payment,
	invoices []*Invoice,
	allocations map[uuid.UUID]decimal.Decimal,
	generatedAt time.Time,
	periodStart, periodEnd *time.Time,
) RunSummary {
	paymentsByID := make(map[uuid.UUID]*Payment, len(payments))
	for _, p := range payments {
		paymentsByID[p.ID] = p
	}

	summary := RunSummary{
		GeneratedAt:       generatedAt,
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		TotalPayments:     len(results),
		MatchedAmount:     valueobject.Zero(a.cfg.Currency),
		PartialAmount:     valueobject.Zero(a.cfg.Currency),
		UnmatchedAmount:   valueobject.Zero(a.cfg.Currency),
		NeedsReviewAmount: valueobject.Zero(a.cfg.Currency),
		TotalOutstanding:  valueobject.Zero(a.cfg.Currency),
	}

	matched, partial, unmatched, review := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, r := range results {
		paymentAmount := decimal.Zero
		if p, ok := paymentsByID[r.PaymentID]; ok {
			paymentAmount = p.Amount.Amount()
		}
		switch r.State {
		case MatchStateMatched:
			summary.MatchedCount++
			matched = matched.Add(r.MatchedAmount.Amount())
		case MatchStatePartial:
			summary.PartialCount++
			partial = partial.Add(r.MatchedAmount.Amount())
		case MatchStateNeedsReview:
			summary.NeedsReviewCount++
			review = review.Add(paymentAmount)
		default:
			summary.UnmatchedCount++
			unmatched = unmatched.Add(paymentAmount)
		}
	}
	summary.MatchedAmount = mustMoney(matched, a.cfg.Currency)
	summary.PartialAmount = mustMoney(partial, a.cfg.Currency)
	summary.UnmatchedAmount = mustMoney(unmatched, a.cfg.Currency)
	summary.NeedsReviewAmount = mustMoney(review, a.cfg.Currency)

	summary.MatchRate = matchRate(summary.MatchedCount+summary.PartialCount, summary.TotalPayments)

	outstanding := decimal.Zero
	for _, inv := range invoices {
		if !inv.Status.Matchable() || !inv.OutstandingBalance.IsPositive() {
			continue
		}
		allocated := allocations[inv.ID]
		if allocated.GreaterThanOrEqual(inv.OutstandingBalance.Amount()) {
			continue
		}
		outstanding = outstanding.Add(inv.OutstandingBalance.Amount())
	}
	summary.TotalOutstanding = mustMoney(outstanding, a.cfg.Currency)

	summary.IssueCount = len(issues)
	for _, issue := range issues {
		if issue.Severity == SeverityHigh {
			summary.HighSeverityIssues++
		}
	}
	return summary
}

// matchRate is (matched + partial) / total as a percentage rounded to
// 1 decimal place. Zero payments yields 0, never a division by zero.
func matchRate(settled, total int) float64 {
	if total == 0 {
		return 0
	}
	rate := decimal.NewFromInt(int64(settled)).
		Div(decimal.NewFromInt(int64(total))).
		Mul(decimal.NewFromInt(100)).
		Round(1)
	f, _ := rate.Float64()
	return f
}

func mustMoney(amount decimal.Decimal, currency valueobject.Currency) valueobject.Money {
	m, _ := valueobject.NewMoney(amount, currency)
	return m
}
