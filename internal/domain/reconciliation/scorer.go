package reconciliation

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// referenceMatchLevel grades how well a payment reference matches an
// invoice's known references
type referenceMatchLevel int

const (
	referenceMatchNone referenceMatchLevel = iota
	referenceMatchPartial
	referenceMatchExact
)

// minFuzzyLength guards substring matching against trivial fragments
const minFuzzyLength = 3

// Score is the Scorer's verdict on one (payment, invoice) pair
type Score struct {
	// Confidence is the weighted signal sum, clamped to [0,1] and
	// rounded to 4 decimal places before any comparison.
	Confidence float64
	// Reasons lists every signal that contributed non-zero weight,
	// most significant first. Mandatory for auditability.
	Reasons []string
	// ExactReference and DateDistance feed the Matcher's deterministic
	// tie-breaks among equally scored candidates.
	ExactReference bool
	DateDistance   time.Duration
}

// Scorer computes a confidence in [0,1] for a candidate pair from
// weighted sub-signals. It reads only the normalized payment fields,
// never gateway metadata, so it stays gateway-agnostic.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer for the given policy
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

type signalContribution struct {
	reason   string
	value    float64
	priority int // fixed order for equal contributions
}

// Score evaluates the payment against the invoice
func (s *Scorer) Score(payment *Payment, inv *Invoice) Score {
	w := s.cfg.Weights
	contributions := make([]signalContribution, 0, 4)

	refLevel := matchReference(payment.Reference, inv)
	switch refLevel {
	case referenceMatchExact:
		contributions = append(contributions, signalContribution{ReasonReferenceExact, w.Reference, 0})
	case referenceMatchPartial:
		contributions = append(contributions, signalContribution{ReasonReferencePartial, w.Reference / 2, 0})
	}

	amount := payment.Amount.Amount()
	outstanding := inv.OutstandingBalance.Amount()
	switch {
	case amount.Equal(outstanding):
		contributions = append(contributions, signalContribution{ReasonAmountExact, w.Amount, 1})
	case amount.LessThan(outstanding) && outstanding.IsPositive():
		// Valid partial: weight scaled by the fraction of the invoice
		// the payment would settle.
		fraction, _ := amount.Div(outstanding).Float64()
		contributions = append(contributions, signalContribution{ReasonAmountPartial, w.Amount * fraction, 1})
	}
	// Overpayment contributes nothing: it is never a same-invoice full
	// match without an explicit split decision.

	distance := payment.ReceivedAt.Sub(inv.IssuedAt)
	if dateScore := s.dateProximity(distance); dateScore > 0 {
		contributions = append(contributions, signalContribution{ReasonDateProximity, w.Date * dateScore, 2})
	}

	switch {
	case payment.CustomerID != nil && *payment.CustomerID == inv.CustomerID:
		contributions = append(contributions, signalContribution{ReasonCustomerID, w.Customer, 3})
	case fuzzyIdentityMatch(payment.PayerIdentity, inv):
		contributions = append(contributions, signalContribution{ReasonCustomerFuzzy, w.Customer / 2, 3})
	}

	sort.SliceStable(contributions, func(i, j int) bool {
		if contributions[i].value != contributions[j].value {
			return contributions[i].value > contributions[j].value
		}
		return contributions[i].priority < contributions[j].priority
	})

	total := 0.0
	reasons := make([]string, 0, len(contributions))
	for _, c := range contributions {
		if c.value <= 0 {
			continue
		}
		total += c.value
		reasons = append(reasons, c.reason)
	}

	return Score{
		Confidence:     roundConfidence(total),
		Reasons:        reasons,
		ExactReference: refLevel == referenceMatchExact,
		DateDistance:   distance,
	}
}

// dateProximity decays linearly from 1.0 at zero distance to 0 at the
// configured window, clipped to 0 outside it rather than going negative
func (s *Scorer) dateProximity(distance time.Duration) float64 {
	if distance < 0 {
		return 0
	}
	days := distance.Hours() / 24
	window := float64(s.cfg.DateWindowDays)
	if days >= window {
		return 0
	}
	return 1 - days/window
}

// matchReference grades the payment reference against every known
// invoice reference. Exact matches compare normalized forms for
// equality; partial matches accept containment in either direction.
func matchReference(reference string, inv *Invoice) referenceMatchLevel {
	ref := normalizeReference(reference)
	if ref == "" {
		return referenceMatchNone
	}

	level := referenceMatchNone
	for _, known := range inv.KnownReferences() {
		k := normalizeReference(known)
		if k == "" {
			continue
		}
		if ref == k {
			return referenceMatchExact
		}
		shorter := min(len(ref), len(k))
		if shorter >= minFuzzyLength && (strings.Contains(ref, k) || strings.Contains(k, ref)) {
			level = referenceMatchPartial
		}
	}
	return level
}

// normalizeReference lowercases and strips all whitespace
func normalizeReference(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// fuzzyIdentityMatch checks the free-text payer identity against the
// invoice's known customer contact fields, case-insensitive substring
// in either direction
func fuzzyIdentityMatch(payerIdentity string, inv *Invoice) bool {
	identity := strings.ToLower(strings.TrimSpace(payerIdentity))
	if len(identity) < minFuzzyLength {
		return false
	}
	for _, field := range []string{inv.CustomerName, inv.CustomerEmail, inv.CustomerPhone} {
		f := strings.ToLower(strings.TrimSpace(field))
		if len(f) < minFuzzyLength {
			continue
		}
		if strings.Contains(identity, f) || strings.Contains(f, identity) {
			return true
		}
	}
	return false
}
