package reconciliation

import (
	"fmt"
	"sort"
	"time"

	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IssueDetector post-processes a completed run for anomalies. Every rule
// is independent and all applicable rules fire, so one payment can
// appear in several issues. Severities are fixed per rule.
type IssueDetector struct {
	cfg Config
}

// NewIssueDetector creates a detector for the given policy
func NewIssueDetector(cfg Config) *IssueDetector {
	return &IssueDetector{cfg: cfg}
}

// Detect runs every rule over the Matcher's output plus the raw inputs.
// now is the run time used by age-based rules. Issues come back in rule
// order with deterministic internal ordering.
func (d *IssueDetector) Detect(
	results []MatchResult,
	payments []*Payment,
	invoices []*Invoice,
	allocations map[uuid.UUID]decimal.Decimal,
	now time.Time,
) []Issue {
	paymentsByID := make(map[uuid.UUID]*Payment, len(payments))
	for _, p := range payments {
		paymentsByID[p.ID] = p
	}

	issues := make([]Issue, 0)
	issues = append(issues, d.duplicateReferences(payments)...)
	issues = append(issues, d.largeUnmatched(results, paymentsByID)...)
	issues = append(issues, d.staleUnmatched(results, paymentsByID, now)...)
	issues = append(issues, d.overdueWithoutPayments(invoices, allocations)...)
	issues = append(issues, d.nearEqualCollisions(results, paymentsByID, invoices)...)
	return issues
}

// duplicateReferences flags two or more payments sharing an identical,
// non-empty reference value
func (d *IssueDetector) duplicateReferences(payments []*Payment) []Issue {
	byReference := make(map[string][]*Payment)
	for _, p := range payments {
		if p.Reference == "" {
			continue
		}
		byReference[p.Reference] = append(byReference[p.Reference], p)
	}

	references := make([]string, 0, len(byReference))
	for ref, group := range byReference {
		if len(group) >= 2 {
			references = append(references, ref)
		}
	}
	sort.Strings(references)

	issues := make([]Issue, 0, len(references))
	for _, ref := range references {
		group := byReference[ref]
		ids := sortedPaymentIDs(group)
		total := decimal.Zero
		currency := group[0].Amount.Currency()
		for _, p := range group {
			total = total.Add(p.Amount.Amount())
		}
		issue := NewIssue(IssueTypeDuplicateReference,
			fmt.Sprintf("%d payments share reference %q", len(group), ref))
		issue.RelatedPaymentIDs = ids
		issue.AmountInvolved = moneyPtr(total, currency)
		issues = append(issues, issue)
	}
	return issues
}

// largeUnmatched flags unmatched or needs-review payments whose amount
// exceeds the large-amount threshold
func (d *IssueDetector) largeUnmatched(results []MatchResult, paymentsByID map[uuid.UUID]*Payment) []Issue {
	issues := make([]Issue, 0)
	for _, r := range results {
		if r.State.Allocates() {
			continue
		}
		p, ok := paymentsByID[r.PaymentID]
		if !ok {
			continue
		}
		if !p.Amount.Amount().GreaterThan(d.cfg.LargeAmountThreshold) {
			continue
		}
		issue := NewIssue(IssueTypeLargeUnmatched,
			fmt.Sprintf("payment %s of %s is %s and exceeds the large-amount threshold",
				p.ID, p.Amount, r.State))
		issue.RelatedPaymentIDs = []uuid.UUID{p.ID}
		issue.AmountInvolved = moneyPtr(p.Amount.Amount(), p.Amount.Currency())
		issues = append(issues, issue)
	}
	return issues
}

// staleUnmatched flags unmatched or needs-review payments older than the
// stale-age threshold relative to run time
func (d *IssueDetector) staleUnmatched(results []MatchResult, paymentsByID map[uuid.UUID]*Payment, now time.Time) []Issue {
	cutoff := now.AddDate(0, 0, -d.cfg.StaleAgeDays)
	issues := make([]Issue, 0)
	for _, r := range results {
		if r.State.Allocates() {
			continue
		}
		p, ok := paymentsByID[r.PaymentID]
		if !ok {
			continue
		}
		if !p.ReceivedAt.Before(cutoff) {
			continue
		}
		age := int(now.Sub(p.ReceivedAt).Hours() / 24)
		issue := NewIssue(IssueTypeStaleUnmatched,
			fmt.Sprintf("payment %s has been %s for %d days", p.ID, r.State, age))
		issue.RelatedPaymentIDs = []uuid.UUID{p.ID}
		issue.AmountInvolved = moneyPtr(p.Amount.Amount(), p.Amount.Currency())
		issues = append(issues, issue)
	}
	return issues
}

// overdueWithoutPayments flags overdue invoices that received no
// matched or partial allocation in this run
func (d *IssueDetector) overdueWithoutPayments(invoices []*Invoice, allocations map[uuid.UUID]decimal.Decimal) []Issue {
	sorted := make([]*Invoice, len(invoices))
	copy(sorted, invoices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.String() < sorted[j].ID.String() })

	issues := make([]Issue, 0)
	for _, inv := range sorted {
		if inv.Status != InvoiceStatusOverdue {
			continue
		}
		if allocated, ok := allocations[inv.ID]; ok && allocated.IsPositive() {
			continue
		}
		issue := NewIssue(IssueTypeOverdueNoPayment,
			fmt.Sprintf("overdue invoice %s (%s outstanding) received no payments", inv.ID, inv.OutstandingBalance))
		issue.RelatedInvoiceIDs = []uuid.UUID{inv.ID}
		issue.AmountInvolved = moneyPtr(inv.OutstandingBalance.Amount(), inv.OutstandingBalance.Currency())
		issues = append(issues, issue)
	}
	return issues
}

// nearEqualCollisions flags clusters of two distinct unmatched payments
// and two distinct open invoices whose pairwise amount differences all
// fall within the near-equal epsilon, suggesting a likely data-entry
// mismatch worth human inspection
func (d *IssueDetector) nearEqualCollisions(results []MatchResult, paymentsByID map[uuid.UUID]*Payment, invoices []*Invoice) []Issue {
	eps := d.cfg.NearEqualEpsilon

	unmatched := make([]*Payment, 0)
	for _, r := range results {
		if r.State != MatchStateUnmatched {
			continue
		}
		if p, ok := paymentsByID[r.PaymentID]; ok {
			unmatched = append(unmatched, p)
		}
	}
	sort.Slice(unmatched, func(i, j int) bool {
		ai, aj := unmatched[i].Amount.Amount(), unmatched[j].Amount.Amount()
		if !ai.Equal(aj) {
			return ai.LessThan(aj)
		}
		return unmatched[i].ID.String() < unmatched[j].ID.String()
	})

	open := make([]*Invoice, 0)
	for _, inv := range invoices {
		if inv.Status.Matchable() && inv.OutstandingBalance.IsPositive() {
			open = append(open, inv)
		}
	}
	sort.Slice(open, func(i, j int) bool {
		oi, oj := open[i].OutstandingBalance.Amount(), open[j].OutstandingBalance.Amount()
		if !oi.Equal(oj) {
			return oi.LessThan(oj)
		}
		return open[i].ID.String() < open[j].ID.String()
	})

	issues := make([]Issue, 0)
	for i := 0; i < len(unmatched); i++ {
		for j := i + 1; j < len(unmatched); j++ {
			p1, p2 := unmatched[i], unmatched[j]
			a1, a2 := p1.Amount.Amount(), p2.Amount.Amount()
			if a2.Sub(a1).GreaterThan(eps) {
				break // sorted by amount, later pairs only widen
			}
			colliding := invoicesWithinEpsilon(open, a1, a2, eps)
			if len(colliding) < 2 {
				continue
			}
			issue := NewIssue(IssueTypeNearEqualCollision,
				fmt.Sprintf("payments %s and %s and %d open invoices have near-equal amounts around %s",
					p1.ID, p2.ID, len(colliding), p1.Amount))
			issue.RelatedPaymentIDs = []uuid.UUID{p1.ID, p2.ID}
			issue.RelatedInvoiceIDs = []uuid.UUID{colliding[0].ID, colliding[1].ID}
			issue.AmountInvolved = moneyPtr(a1, p1.Amount.Currency())
			issues = append(issues, issue)
		}
	}
	return issues
}

// invoicesWithinEpsilon returns open invoices whose outstanding balance
// is within eps of both payment amounts, preserving sorted order
func invoicesWithinEpsilon(open []*Invoice, a1, a2, eps decimal.Decimal) []*Invoice {
	matched := make([]*Invoice, 0, 2)
	for _, inv := range open {
		o := inv.OutstandingBalance.Amount()
		if o.Sub(a1).Abs().LessThanOrEqual(eps) && o.Sub(a2).Abs().LessThanOrEqual(eps) {
			matched = append(matched, inv)
		}
	}
	return matched
}

func sortedPaymentIDs(payments []*Payment) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(payments))
	for _, p := range payments {
		ids = append(ids, p.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func moneyPtr(amount decimal.Decimal, currency valueobject.Currency) *valueobject.Money {
	m, _ := valueobject.NewMoney(amount, currency)
	return &m
}
