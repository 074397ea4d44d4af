package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/finrec/backend/internal/domain/reconciliation"
	"github.com/finrec/backend/internal/domain/shared"
	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/finrec/backend/internal/infrastructure/cache"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newReviewService(t *testing.T, payments *MockPaymentRepository, invoices *MockInvoiceRepository, runs *MockRunRepository) *ReviewService {
	t.Helper()
	return NewReviewService(
		payments, invoices, runs,
		cache.NewInMemorySummaryCache(time.Minute),
		WithReviewClock(func() time.Time { return serviceTime }),
	)
}

func needsReviewResult(invoiceID uuid.UUID) *reconciliation.MatchResult {
	return &reconciliation.MatchResult{
		ID:            uuid.New(),
		PaymentID:     uuid.New(),
		InvoiceID:     &invoiceID,
		State:         reconciliation.MatchStateNeedsReview,
		Confidence:    0.72,
		MatchedAmount: valueobject.ZeroKES(),
		Reasons:       []string{reconciliation.ReasonReferencePartial},
		CreatedAt:     serviceTime,
	}
}

func TestReviewConfirmSettlesInvoice(t *testing.T) {
	payments := new(MockPaymentRepository)
	invoices := new(MockInvoiceRepository)
	runs := new(MockRunRepository)
	svc := newReviewService(t, payments, invoices, runs)

	invoice := testInvoice("INV-200", 4000)
	payment := testPayment(4000, "INV-200")
	result := needsReviewResult(invoice.ID)
	result.PaymentID = payment.ID
	approved := decimal.NewFromInt(4000)

	runs.On("FindMatchResultByID", mock.Anything, result.ID).Return(result, nil)
	payments.On("FindByID", mock.Anything, payment.ID).Return(&payment, nil)
	invoices.On("FindByID", mock.Anything, invoice.ID).Return(&invoice, nil)
	runs.On("SumAllocatedForInvoice", mock.Anything, invoice.ID).
		Return(valueobject.ZeroKES(), nil)
	runs.On("SaveReviewDecision", mock.Anything, result, mock.AnythingOfType("*reconciliation.ReviewDecision")).
		Return(nil)

	reviewed, decision, err := svc.Review(context.Background(), ReviewRequest{
		MatchResultID:  result.ID,
		Outcome:        reconciliation.ReviewOutcomeConfirmed,
		ApprovedAmount: &approved,
		Reviewer:       "ops@finrec.example",
		Note:           "verified against bank statement",
	})
	require.NoError(t, err)

	assert.Equal(t, reconciliation.MatchStateMatched, reviewed.State)
	assert.True(t, reviewed.MatchedAmount.Equals(valueobject.NewMoneyKES(approved)))
	assert.Equal(t, reconciliation.ReviewOutcomeConfirmed, decision.Outcome)
	assert.Equal(t, "ops@finrec.example", decision.Reviewer)
	assert.Equal(t, serviceTime, decision.DecidedAt)
	runs.AssertExpectations(t)
}

func TestReviewConfirmPartialAmount(t *testing.T) {
	payments := new(MockPaymentRepository)
	invoices := new(MockInvoiceRepository)
	runs := new(MockRunRepository)
	svc := newReviewService(t, payments, invoices, runs)

	invoice := testInvoice("INV-201", 4000)
	payment := testPayment(2500, "INV-201")
	result := needsReviewResult(invoice.ID)
	result.PaymentID = payment.ID
	approved := decimal.NewFromInt(2500)

	runs.On("FindMatchResultByID", mock.Anything, result.ID).Return(result, nil)
	payments.On("FindByID", mock.Anything, payment.ID).Return(&payment, nil)
	invoices.On("FindByID", mock.Anything, invoice.ID).Return(&invoice, nil)
	runs.On("SumAllocatedForInvoice", mock.Anything, invoice.ID).
		Return(valueobject.ZeroKES(), nil)
	runs.On("SaveReviewDecision", mock.Anything, result, mock.Anything).Return(nil)

	reviewed, _, err := svc.Review(context.Background(), ReviewRequest{
		MatchResultID:  result.ID,
		Outcome:        reconciliation.ReviewOutcomeConfirmed,
		ApprovedAmount: &approved,
		Reviewer:       "ops@finrec.example",
	})
	require.NoError(t, err)
	assert.Equal(t, reconciliation.MatchStatePartial, reviewed.State)
}

func TestReviewReject(t *testing.T) {
	payments := new(MockPaymentRepository)
	invoices := new(MockInvoiceRepository)
	runs := new(MockRunRepository)
	svc := newReviewService(t, payments, invoices, runs)

	invoice := testInvoice("INV-202", 4000)
	result := needsReviewResult(invoice.ID)

	runs.On("FindMatchResultByID", mock.Anything, result.ID).Return(result, nil)
	runs.On("SaveReviewDecision", mock.Anything, result, mock.Anything).Return(nil)

	reviewed, decision, err := svc.Review(context.Background(), ReviewRequest{
		MatchResultID: result.ID,
		Outcome:       reconciliation.ReviewOutcomeRejected,
		Reviewer:      "ops@finrec.example",
	})
	require.NoError(t, err)

	assert.Equal(t, reconciliation.MatchStateUnmatched, reviewed.State)
	assert.True(t, reviewed.MatchedAmount.IsZero())
	assert.Equal(t, reconciliation.ReviewOutcomeRejected, decision.Outcome)

	// rejection never touches the payment or the invoice
	payments.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	invoices.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestReviewValidation(t *testing.T) {
	payments := new(MockPaymentRepository)
	invoices := new(MockInvoiceRepository)
	runs := new(MockRunRepository)
	svc := newReviewService(t, payments, invoices, runs)

	invoice := testInvoice("INV-203", 4000)

	t.Run("unknown outcome", func(t *testing.T) {
		_, _, err := svc.Review(context.Background(), ReviewRequest{
			MatchResultID: uuid.New(),
			Outcome:       "MAYBE",
			Reviewer:      "ops",
		})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_REVIEW_OUTCOME", domainErr.Code)
	})

	t.Run("missing reviewer", func(t *testing.T) {
		_, _, err := svc.Review(context.Background(), ReviewRequest{
			MatchResultID: uuid.New(),
			Outcome:       reconciliation.ReviewOutcomeRejected,
		})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "REVIEWER_REQUIRED", domainErr.Code)
	})

	t.Run("result not found", func(t *testing.T) {
		id := uuid.New()
		runs.On("FindMatchResultByID", mock.Anything, id).Return(nil, nil).Once()

		_, _, err := svc.Review(context.Background(), ReviewRequest{
			MatchResultID: id,
			Outcome:       reconciliation.ReviewOutcomeRejected,
			Reviewer:      "ops",
		})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "RESULT_NOT_FOUND", domainErr.Code)
	})

	t.Run("confirm requires positive amount", func(t *testing.T) {
		result := needsReviewResult(invoice.ID)
		runs.On("FindMatchResultByID", mock.Anything, result.ID).Return(result, nil).Once()

		_, _, err := svc.Review(context.Background(), ReviewRequest{
			MatchResultID: result.ID,
			Outcome:       reconciliation.ReviewOutcomeConfirmed,
			Reviewer:      "ops",
		})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_AMOUNT", domainErr.Code)
	})

	t.Run("only needs_review results are reviewable", func(t *testing.T) {
		result := needsReviewResult(invoice.ID)
		result.State = reconciliation.MatchStateMatched
		runs.On("FindMatchResultByID", mock.Anything, result.ID).Return(result, nil).Once()

		_, _, err := svc.Review(context.Background(), ReviewRequest{
			MatchResultID: result.ID,
			Outcome:       reconciliation.ReviewOutcomeRejected,
			Reviewer:      "ops",
		})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "NOT_REVIEWABLE", domainErr.Code)
	})
}

func TestReviewConservationGuards(t *testing.T) {
	payments := new(MockPaymentRepository)
	invoices := new(MockInvoiceRepository)
	runs := new(MockRunRepository)
	svc := newReviewService(t, payments, invoices, runs)

	invoice := testInvoice("INV-204", 1000)

	t.Run("approved amount above payment amount", func(t *testing.T) {
		// a small payment was tentatively matched against a large invoice;
		// confirming the full invoice amount must not mint money
		payment := testPayment(500, "INV-204")
		result := needsReviewResult(invoice.ID)
		result.PaymentID = payment.ID
		approved := decimal.NewFromInt(4000)

		runs.On("FindMatchResultByID", mock.Anything, result.ID).Return(result, nil).Once()
		payments.On("FindByID", mock.Anything, payment.ID).Return(&payment, nil).Once()
		invoices.On("FindByID", mock.Anything, invoice.ID).Return(&invoice, nil).Once()

		_, _, err := svc.Review(context.Background(), ReviewRequest{
			MatchResultID:  result.ID,
			Outcome:        reconciliation.ReviewOutcomeConfirmed,
			ApprovedAmount: &approved,
			Reviewer:       "ops",
		})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "AMOUNT_EXCEEDS_PAYMENT", domainErr.Code)
		runs.AssertNotCalled(t, "SaveReviewDecision", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("approved amount above outstanding balance", func(t *testing.T) {
		payment := testPayment(2000, "INV-204")
		result := needsReviewResult(invoice.ID)
		result.PaymentID = payment.ID
		approved := decimal.NewFromInt(1500)

		runs.On("FindMatchResultByID", mock.Anything, result.ID).Return(result, nil).Once()
		payments.On("FindByID", mock.Anything, payment.ID).Return(&payment, nil).Once()
		invoices.On("FindByID", mock.Anything, invoice.ID).Return(&invoice, nil).Once()

		_, _, err := svc.Review(context.Background(), ReviewRequest{
			MatchResultID:  result.ID,
			Outcome:        reconciliation.ReviewOutcomeConfirmed,
			ApprovedAmount: &approved,
			Reviewer:       "ops",
		})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "AMOUNT_EXCEEDS_OUTSTANDING", domainErr.Code)
	})

	t.Run("approved amount would over-allocate across runs", func(t *testing.T) {
		// outstanding balance says 1000 is free, but committed allocations
		// already cover most of the invoice total
		payment := testPayment(1000, "INV-204")
		result := needsReviewResult(invoice.ID)
		result.PaymentID = payment.ID
		approved := decimal.NewFromInt(1000)

		runs.On("FindMatchResultByID", mock.Anything, result.ID).Return(result, nil).Once()
		payments.On("FindByID", mock.Anything, payment.ID).Return(&payment, nil).Once()
		invoices.On("FindByID", mock.Anything, invoice.ID).Return(&invoice, nil).Once()
		runs.On("SumAllocatedForInvoice", mock.Anything, invoice.ID).
			Return(valueobject.NewMoneyKES(decimal.NewFromInt(500)), nil).Once()

		_, _, err := svc.Review(context.Background(), ReviewRequest{
			MatchResultID:  result.ID,
			Outcome:        reconciliation.ReviewOutcomeConfirmed,
			ApprovedAmount: &approved,
			Reviewer:       "ops",
		})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "AMOUNT_EXCEEDS_OUTSTANDING", domainErr.Code)
		runs.AssertNotCalled(t, "SaveReviewDecision", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("reviewed payment no longer exists", func(t *testing.T) {
		result := needsReviewResult(invoice.ID)
		approved := decimal.NewFromInt(500)

		runs.On("FindMatchResultByID", mock.Anything, result.ID).Return(result, nil).Once()
		payments.On("FindByID", mock.Anything, result.PaymentID).Return(nil, nil).Once()

		_, _, err := svc.Review(context.Background(), ReviewRequest{
			MatchResultID:  result.ID,
			Outcome:        reconciliation.ReviewOutcomeConfirmed,
			ApprovedAmount: &approved,
			Reviewer:       "ops",
		})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "PAYMENT_NOT_FOUND", domainErr.Code)
	})
}
