package reconciliation

import (
	"sort"
	"time"

	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ScoredCandidate is a candidate invoice with its computed score
type ScoredCandidate struct {
	Invoice         *Invoice
	PrefilterReason string
	Score           Score
}

// PaymentCandidates carries one payment's scored candidates into the
// assignment pass. Candidate generation and scoring run against the
// immutable run snapshot and may be computed in parallel; the Matcher
// pass itself is strictly sequential.
type PaymentCandidates struct {
	Payment    *Payment
	Candidates []ScoredCandidate
}

// MatchOutcome is the Matcher's output: one result per payment plus the
// proposed balance consumption per invoice. The engine never mutates the
// input invoices; actual persistence of consumption belongs to the
// invoice-management collaborator.
type MatchOutcome struct {
	Results     []MatchResult
	Allocations map[uuid.UUID]decimal.Decimal
}

// Matcher resolves scored candidates into a consistent assignment.
//
// Payments are processed in ascending received_at order (ties broken by
// payment id) so that when two payments plausibly claim the same invoice,
// the chronologically first one wins. Once a payment consumes an
// invoice's remaining balance the invoice leaves the candidate pool for
// every later payment in the run; later payments are re-scored against
// the remaining balances before resolution.
type Matcher struct {
	cfg    Config
	scorer *Scorer
}

// NewMatcher creates a matcher for the given policy
func NewMatcher(cfg Config) *Matcher {
	return &Matcher{cfg: cfg, scorer: NewScorer(cfg)}
}

// Resolve runs the sequential assignment pass. The prescored slice is
// reordered in place into processing order. now stamps every result so
// a run's outputs share one timestamp.
func (m *Matcher) Resolve(prescored []PaymentCandidates, now time.Time) MatchOutcome {
	sort.SliceStable(prescored, func(i, j int) bool {
		pi, pj := prescored[i].Payment, prescored[j].Payment
		if !pi.ReceivedAt.Equal(pj.ReceivedAt) {
			return pi.ReceivedAt.Before(pj.ReceivedAt)
		}
		return pi.ID.String() < pj.ID.String()
	})

	// Explicit balance accumulator: remaining outstanding per invoice,
	// consumed as earlier payments claim their targets.
	remaining := make(map[uuid.UUID]decimal.Decimal)
	for _, pc := range prescored {
		for _, c := range pc.Candidates {
			if _, ok := remaining[c.Invoice.ID]; !ok {
				remaining[c.Invoice.ID] = c.Invoice.OutstandingBalance.Amount()
			}
		}
	}

	outcome := MatchOutcome{
		Results:     make([]MatchResult, 0, len(prescored)),
		Allocations: make(map[uuid.UUID]decimal.Decimal),
	}
	for _, pc := range prescored {
		result := m.resolveOne(pc, remaining, now)
		if result.State.Allocates() {
			invoiceID := *result.InvoiceID
			amount := result.MatchedAmount.Amount()
			remaining[invoiceID] = remaining[invoiceID].Sub(amount)
			outcome.Allocations[invoiceID] = outcome.Allocations[invoiceID].Add(amount)
		}
		outcome.Results = append(outcome.Results, result)
	}
	return outcome
}

func (m *Matcher) resolveOne(pc PaymentCandidates, remaining map[uuid.UUID]decimal.Decimal, now time.Time) MatchResult {
	payment := pc.Payment
	result := MatchResult{
		ID:            matchResultID(payment.ID),
		PaymentID:     payment.ID,
		State:         MatchStateUnmatched,
		MatchedAmount: valueobject.Zero(payment.Amount.Currency()),
		CreatedAt:     now,
	}

	if len(pc.Candidates) == 0 {
		result.Reasons = []string{ReasonNoCandidate}
		return result
	}

	live := m.rescoreAgainstRemaining(payment, pc.Candidates, remaining)
	if len(live) == 0 {
		// Every candidate was consumed by an earlier payment in this run.
		result.Reasons = []string{ReasonInvoiceConsumed}
		return result
	}

	rankCandidates(live)
	best := live[0]
	balance := remaining[best.Invoice.ID]
	amount := payment.Amount.Amount()
	overpays := amount.GreaterThan(balance)

	result.Confidence = best.Score.Confidence
	result.Reasons = best.Score.Reasons

	switch {
	case best.Score.Confidence >= m.cfg.AutoMatchThreshold:
		if overpays {
			// Splitting a payment across invoices is a business decision
			// the engine must not make silently.
			result.State = MatchStateNeedsReview
			result.InvoiceID = &best.Invoice.ID
			result.Reasons = prependReason(ReasonOverpaymentReview, best.Score.Reasons)
			return result
		}
		invoiceID := best.Invoice.ID
		result.InvoiceID = &invoiceID
		result.MatchedAmount = payment.Amount
		if amount.Equal(balance) {
			result.State = MatchStateMatched
		} else {
			result.State = MatchStatePartial
		}
	case best.Score.Confidence >= m.cfg.ReviewThreshold:
		invoiceID := best.Invoice.ID
		result.State = MatchStateNeedsReview
		result.InvoiceID = &invoiceID
		if overpays {
			result.Reasons = prependReason(ReasonOverpaymentReview, best.Score.Reasons)
		}
	default:
		// Below the review threshold the candidate is not credible
		// enough to surface; the best score and reasons stay on the
		// result for audit.
		result.State = MatchStateUnmatched
	}
	return result
}

// rescoreAgainstRemaining drops consumed invoices and re-scores any
// candidate whose remaining balance no longer equals the snapshot
// outstanding, since the amount signal depends on it
func (m *Matcher) rescoreAgainstRemaining(payment *Payment, candidates []ScoredCandidate, remaining map[uuid.UUID]decimal.Decimal) []ScoredCandidate {
	live := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		balance, ok := remaining[c.Invoice.ID]
		if !ok || !balance.IsPositive() {
			continue
		}
		if !balance.Equal(c.Invoice.OutstandingBalance.Amount()) {
			adjusted := *c.Invoice
			adjusted.OutstandingBalance, _ = valueobject.NewMoney(balance, c.Invoice.OutstandingBalance.Currency())
			c.Invoice = &adjusted
			c.Score = m.scorer.Score(payment, &adjusted)
		}
		live = append(live, c)
	}
	return live
}

// rankCandidates orders candidates best-first using the deterministic
// tie-break chain: confidence, exact reference over fuzzy, smaller
// absolute date distance, smaller invoice id. Ties are never left to
// map iteration order.
func rankCandidates(candidates []ScoredCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := candidates[i].Score, candidates[j].Score
		if si.Confidence != sj.Confidence {
			return si.Confidence > sj.Confidence
		}
		if si.ExactReference != sj.ExactReference {
			return si.ExactReference
		}
		di, dj := absDuration(si.DateDistance), absDuration(sj.DateDistance)
		if di != dj {
			return di < dj
		}
		return candidates[i].Invoice.ID.String() < candidates[j].Invoice.ID.String()
	})
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func prependReason(reason string, reasons []string) []string {
	out := make([]string, 0, len(reasons)+1)
	out = append(out, reason)
	return append(out, reasons...)
}

// matchResultID derives a stable result id from the payment id so that
// identical runs produce identical output
func matchResultID(paymentID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("match-result:"+paymentID.String()))
}
