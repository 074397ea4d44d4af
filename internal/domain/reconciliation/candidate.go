package reconciliation

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Prefilter reasons recorded by the candidate generator. They document
// which gate admitted an invoice; final ranking belongs to the Scorer.
const (
	PrefilterAmountWithinTolerance = "outstanding_within_tolerance"
	PrefilterPartialPayment        = "payment_below_outstanding"
	PrefilterReferenceOverpayment  = "reference_match_overpayment"
)

// Candidate is an invoice admitted as a plausible match for one payment
type Candidate struct {
	Invoice         *Invoice
	PrefilterReason string
}

// CandidateGenerator produces the set of invoices that are plausible
// matches for a payment. It applies cheap gates only; scoring and
// ranking are the Scorer's job.
type CandidateGenerator struct {
	cfg Config
}

// NewCandidateGenerator creates a candidate generator for the given policy
func NewCandidateGenerator(cfg Config) *CandidateGenerator {
	return &CandidateGenerator{cfg: cfg}
}

// Generate returns the plausible invoices for the payment, ordered by
// smallest |outstanding - amount| purely to bound later scoring work.
//
// Gates, in order:
//   - invoice must be open: matchable status and outstanding balance > 0
//   - a payment cannot precede its invoice: issued_at <= received_at,
//     with no upper bound on payment lateness
//   - resolved customer_id restricts hard; an unresolved payer identity
//     never excludes an invoice, it only feeds the customer signal
//   - amount window: |outstanding - amount| within tolerance, else a
//     valid partial (amount < outstanding), else overpayment admitted
//     only on an exact reference match so the Matcher can route it to
//     review instead of dropping it silently
func (g *CandidateGenerator) Generate(payment *Payment, invoices []*Invoice) []Candidate {
	amount := payment.Amount.Amount()
	candidates := make([]Candidate, 0, 8)

	for _, inv := range invoices {
		if !inv.Status.Matchable() || !inv.OutstandingBalance.IsPositive() {
			continue
		}
		if inv.IssuedAt.After(payment.ReceivedAt) {
			continue
		}
		if payment.CustomerID != nil && inv.CustomerID != *payment.CustomerID {
			continue
		}

		outstanding := inv.OutstandingBalance.Amount()
		reason, ok := g.amountGate(payment, inv, amount, outstanding)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{Invoice: inv, PrefilterReason: reason})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di := candidates[i].Invoice.OutstandingBalance.Amount().Sub(amount).Abs()
		dj := candidates[j].Invoice.OutstandingBalance.Amount().Sub(amount).Abs()
		if !di.Equal(dj) {
			return di.LessThan(dj)
		}
		return candidates[i].Invoice.ID.String() < candidates[j].Invoice.ID.String()
	})
	return candidates
}

func (g *CandidateGenerator) amountGate(payment *Payment, inv *Invoice, amount, outstanding decimal.Decimal) (string, bool) {
	diff := outstanding.Sub(amount).Abs()
	switch {
	case diff.LessThanOrEqual(g.cfg.AmountTolerance):
		return PrefilterAmountWithinTolerance, true
	case amount.LessThan(outstanding):
		return PrefilterPartialPayment, true
	case matchReference(payment.Reference, inv) == referenceMatchExact:
		// Overpayment: never auto-matched, but a strong reference match
		// must surface for a human split decision rather than vanish.
		return PrefilterReferenceOverpayment, true
	}
	return "", false
}
