package reconciliation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScorerStrongReferenceAndAmount(t *testing.T) {
	scorer := NewScorer(DefaultConfig())

	// Exact reference, exact amount, 4 days after issue:
	// 0.40 + 0.35 + 0.15*(1 - 4/90) = 0.8933
	payment := makePayment(5000, withReference("INV-100"), withReceivedAt(day(-6)))
	inv := makeInvoice("INV-100", 5000, withIssuedAt(day(-10)))

	score := scorer.Score(&payment, &inv)
	assert.Equal(t, 0.8933, score.Confidence)
	assert.True(t, score.ExactReference)
	assert.Equal(t, []string{ReasonReferenceExact, ReasonAmountExact, ReasonDateProximity}, score.Reasons)
}

func TestScorerPartialAmountScaling(t *testing.T) {
	scorer := NewScorer(DefaultConfig())

	// Amount signal scaled by 3000/5000: 0.35*0.6 = 0.21, plus date
	// proximity 0.1433; no reference, no customer signal.
	payment := makePayment(3000, withReceivedAt(day(-6)))
	inv := makeInvoice("INV-200", 5000, withIssuedAt(day(-10)))

	score := scorer.Score(&payment, &inv)
	assert.Equal(t, 0.3533, score.Confidence)
	assert.Equal(t, []string{ReasonAmountPartial, ReasonDateProximity}, score.Reasons)
}

func TestScorerDateWindowBoundary(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	customerID := uuid.New()

	// 95 days late is outside the default 90-day window: the date signal
	// contributes nothing, but reference + amount + customer still reach
	// the auto-match threshold.
	payment := makePayment(5000,
		withReference("INV-300"),
		withCustomer(customerID),
		withReceivedAt(day(0)))
	inv := makeInvoice("INV-300", 5000,
		withIssuedAt(day(-95)),
		withInvoiceCustomer(customerID))

	score := scorer.Score(&payment, &inv)
	assert.Equal(t, 0.85, score.Confidence)
	assert.NotContains(t, score.Reasons, ReasonDateProximity)
	assert.Equal(t, []string{ReasonReferenceExact, ReasonAmountExact, ReasonCustomerID}, score.Reasons)
}

func TestScorerDateDecaysLinearly(t *testing.T) {
	scorer := NewScorer(DefaultConfig())

	sameDay := makePayment(5000, withReceivedAt(day(-10)))
	halfWindow := makePayment(5000, withReceivedAt(day(35))) // 45 of 90 days
	inv := makeInvoice("INV-310", 5000, withIssuedAt(day(-10)))

	full := scorer.Score(&sameDay, &inv)
	half := scorer.Score(&halfWindow, &inv)

	// 0.35 amount + full/half date weight.
	assert.Equal(t, 0.5, full.Confidence)
	assert.Equal(t, 0.425, half.Confidence)
}

func TestScorerReferencePartialContainment(t *testing.T) {
	scorer := NewScorer(DefaultConfig())

	// "MPESA INV-400 CONFIRMED" normalizes to contain "inv-400": half
	// reference weight.
	payment := makePayment(5000, withReference("MPESA INV-400 CONFIRMED"), withReceivedAt(day(-10)))
	inv := makeInvoice("INV-400", 5000, withIssuedAt(day(-10)))

	score := scorer.Score(&payment, &inv)
	assert.False(t, score.ExactReference)
	assert.Contains(t, score.Reasons, ReasonReferencePartial)
	// 0.20 + 0.35 + 0.15
	assert.Equal(t, 0.7, score.Confidence)
}

func TestScorerReferenceHints(t *testing.T) {
	scorer := NewScorer(DefaultConfig())

	payment := makePayment(5000, withReference("PB-778899"), withReceivedAt(day(-10)))
	inv := makeInvoice("INV-410", 5000, withIssuedAt(day(-10)))
	inv.ReferenceHints = []string{"PB-778899"}

	score := scorer.Score(&payment, &inv)
	assert.True(t, score.ExactReference)
}

func TestScorerCustomerSignals(t *testing.T) {
	t.Run("resolved customer id gets full weight", func(t *testing.T) {
		scorer := NewScorer(DefaultConfig())
		customerID := uuid.New()
		payment := makePayment(5000, withCustomer(customerID), withReceivedAt(day(-10)))
		inv := makeInvoice("INV-500", 5000, withIssuedAt(day(-10)), withInvoiceCustomer(customerID))

		score := scorer.Score(&payment, &inv)
		// 0.35 amount + 0.15 date + 0.10 customer
		assert.Equal(t, 0.6, score.Confidence)
		assert.Contains(t, score.Reasons, ReasonCustomerID)
	})

	t.Run("fuzzy identity gets half weight", func(t *testing.T) {
		scorer := NewScorer(DefaultConfig())
		payment := makePayment(5000, withPayerIdentity("JOHN MWANGI 0712345678"), withReceivedAt(day(-10)))
		inv := makeInvoice("INV-501", 5000,
			withIssuedAt(day(-10)),
			withContact("John Mwangi", "john@example.com", "0712345678"))

		score := scorer.Score(&payment, &inv)
		// 0.35 + 0.15 + 0.05
		assert.Equal(t, 0.55, score.Confidence)
		assert.Contains(t, score.Reasons, ReasonCustomerFuzzy)
	})

	t.Run("short identity fragments never match", func(t *testing.T) {
		scorer := NewScorer(DefaultConfig())
		payment := makePayment(5000, withPayerIdentity("JM"), withReceivedAt(day(-10)))
		inv := makeInvoice("INV-502", 5000, withIssuedAt(day(-10)), withContact("JM Holdings", "", ""))

		score := scorer.Score(&payment, &inv)
		assert.NotContains(t, score.Reasons, ReasonCustomerFuzzy)
	})
}

func TestScorerOverpaymentContributesNoAmountSignal(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	payment := makePayment(6000, withReference("INV-600"), withReceivedAt(day(-10)))
	inv := makeInvoice("INV-600", 5000, withIssuedAt(day(-10)))

	score := scorer.Score(&payment, &inv)
	assert.NotContains(t, score.Reasons, ReasonAmountExact)
	assert.NotContains(t, score.Reasons, ReasonAmountPartial)
	// 0.40 reference + 0.15 date only.
	assert.Equal(t, 0.55, score.Confidence)
}

func TestScorerReasonsOrderedBySignificance(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	customerID := uuid.New()
	payment := makePayment(5000,
		withReference("INV-700"),
		withCustomer(customerID),
		withReceivedAt(day(-10)))
	inv := makeInvoice("INV-700", 5000, withIssuedAt(day(-10)), withInvoiceCustomer(customerID))

	score := scorer.Score(&payment, &inv)
	require.Equal(t, []string{
		ReasonReferenceExact,
		ReasonAmountExact,
		ReasonDateProximity,
		ReasonCustomerID,
	}, score.Reasons)
	assert.Equal(t, 1.0, score.Confidence)
}
