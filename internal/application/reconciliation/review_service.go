package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/finrec/backend/internal/domain/reconciliation"
	"github.com/finrec/backend/internal/domain/shared"
	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/finrec/backend/internal/infrastructure/cache"
	"github.com/finrec/backend/internal/infrastructure/logger"
	"github.com/finrec/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReviewService resolves needs_review match results. Confirming commits
// the approved amount against the invoice under the same conservation
// guard the engine applies; rejecting returns the payment to the
// unmatched pool. Either way an audit record is written.
type ReviewService struct {
	paymentRepo  reconciliation.PaymentRepository
	invoiceRepo  reconciliation.InvoiceRepository
	runRepo      reconciliation.RunRepository
	summaryCache cache.SummaryCache
	metrics      *telemetry.ReconciliationMetrics

	now func() time.Time
}

// ReviewServiceOption is a functional option for configuring the ReviewService
type ReviewServiceOption func(*ReviewService)

// WithReviewMetrics attaches reconciliation metrics recording
func WithReviewMetrics(m *telemetry.ReconciliationMetrics) ReviewServiceOption {
	return func(s *ReviewService) {
		s.metrics = m
	}
}

// WithReviewClock overrides the service clock, for tests
func WithReviewClock(now func() time.Time) ReviewServiceOption {
	return func(s *ReviewService) {
		s.now = now
	}
}

// NewReviewService creates a new ReviewService
func NewReviewService(
	paymentRepo reconciliation.PaymentRepository,
	invoiceRepo reconciliation.InvoiceRepository,
	runRepo reconciliation.RunRepository,
	summaryCache cache.SummaryCache,
	opts ...ReviewServiceOption,
) *ReviewService {
	s := &ReviewService{
		paymentRepo:  paymentRepo,
		invoiceRepo:  invoiceRepo,
		runRepo:      runRepo,
		summaryCache: summaryCache,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReviewRequest is one human decision on a needs_review match result
type ReviewRequest struct {
	MatchResultID uuid.UUID
	Outcome       reconciliation.ReviewOutcome
	// ApprovedAmount is required when confirming. It may settle the
	// invoice in full or leave a remainder.
	ApprovedAmount *decimal.Decimal
	Reviewer       string
	Note           string
}

// Review applies a review decision and persists it atomically together
// with the match result transition and any resulting allocation.
func (s *ReviewService) Review(ctx context.Context, req ReviewRequest) (*reconciliation.MatchResult, *reconciliation.ReviewDecision, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "review",
		telemetry.WithAttribute(telemetry.SpanAttrMatchResultID, req.MatchResultID.String()))
	defer span.End()

	if !req.Outcome.IsValid() {
		err := shared.NewDomainError("INVALID_REVIEW_OUTCOME",
			"review outcome must be CONFIRMED or REJECTED")
		telemetry.RecordError(span, err)
		return nil, nil, err
	}
	if req.Reviewer == "" {
		err := shared.NewDomainError("REVIEWER_REQUIRED", "reviewer identity is required")
		telemetry.RecordError(span, err)
		return nil, nil, err
	}

	result, err := s.runRepo.FindMatchResultByID(ctx, req.MatchResultID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, fmt.Errorf("failed to load match result: %w", err)
	}
	if result == nil {
		return nil, nil, shared.NewDomainError("RESULT_NOT_FOUND", "match result not found")
	}

	approved, settles, err := s.resolveApproval(ctx, result, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, err
	}

	if err := result.ApplyReview(req.Outcome, approved, settles); err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, err
	}

	decision := &reconciliation.ReviewDecision{
		ID:            uuid.New(),
		MatchResultID: result.ID,
		Outcome:       req.Outcome,
		Reviewer:      req.Reviewer,
		Note:          req.Note,
		DecidedAt:     s.now(),
	}

	if err := s.runRepo.SaveReviewDecision(ctx, result, decision); err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, fmt.Errorf("failed to persist review decision: %w", err)
	}

	// the cached summary no longer reflects the reviewed state
	if err := s.summaryCache.Invalidate(ctx); err != nil {
		logger.L(ctx).Warn("Failed to invalidate summary cache", zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.RecordReviewDecision(ctx, string(req.Outcome))
	}

	logger.L(ctx).Info("Review decision recorded",
		zap.String("match_result_id", result.ID.String()),
		zap.String("outcome", string(req.Outcome)),
		zap.String("state", string(result.State)),
	)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrMatchState, string(result.State),
		telemetry.SpanAttrReviewer, req.Reviewer,
	)

	return result, decision, nil
}

// resolveApproval validates the approved amount for a confirmation
// against the candidate invoice's remaining balance. Rejections carry no
// amount.
func (s *ReviewService) resolveApproval(ctx context.Context, result *reconciliation.MatchResult, req ReviewRequest) (valueobject.Money, bool, error) {
	currency := result.MatchedAmount.Currency()

	if req.Outcome == reconciliation.ReviewOutcomeRejected {
		return valueobject.Zero(currency), false, nil
	}

	if result.InvoiceID == nil {
		return valueobject.Money{}, false, shared.NewDomainError("NOT_REVIEWABLE",
			"cannot confirm a result with no candidate invoice")
	}
	if req.ApprovedAmount == nil || !req.ApprovedAmount.IsPositive() {
		return valueobject.Money{}, false, shared.NewDomainError("INVALID_AMOUNT",
			"a positive approved amount is required to confirm")
	}

	payment, err := s.paymentRepo.FindByID(ctx, result.PaymentID)
	if err != nil {
		return valueobject.Money{}, false, fmt.Errorf("failed to load payment: %w", err)
	}
	if payment == nil {
		return valueobject.Money{}, false, shared.NewDomainError("PAYMENT_NOT_FOUND",
			"reviewed payment no longer exists")
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, *result.InvoiceID)
	if err != nil {
		return valueobject.Money{}, false, fmt.Errorf("failed to load invoice: %w", err)
	}
	if invoice == nil {
		return valueobject.Money{}, false, shared.NewDomainError("INVOICE_NOT_FOUND",
			"candidate invoice no longer exists")
	}

	approved, err := valueobject.NewMoney(*req.ApprovedAmount, currency)
	if err != nil {
		return valueobject.Money{}, false, err
	}

	// a confirmation never allocates more money than the payment brought in
	overPayment, err := approved.GreaterThan(payment.Amount)
	if err != nil {
		return valueobject.Money{}, false, err
	}
	if overPayment {
		return valueobject.Money{}, false, shared.NewDomainError("AMOUNT_EXCEEDS_PAYMENT",
			fmt.Sprintf("approved amount %s exceeds payment amount %s",
				approved.String(), payment.Amount.String()))
	}

	exceeds, err := approved.GreaterThan(invoice.OutstandingBalance)
	if err != nil {
		return valueobject.Money{}, false, err
	}
	if exceeds {
		return valueobject.Money{}, false, shared.NewDomainError("AMOUNT_EXCEEDS_OUTSTANDING",
			fmt.Sprintf("approved amount %s exceeds outstanding balance %s",
				approved.String(), invoice.OutstandingBalance.String()))
	}

	// cross-check against committed allocations: the sum over all runs and
	// confirmed reviews must never exceed the invoice total
	allocated, err := s.runRepo.SumAllocatedForInvoice(ctx, invoice.ID)
	if err != nil {
		return valueobject.Money{}, false, fmt.Errorf("failed to sum invoice allocations: %w", err)
	}
	if allocated.Amount().Add(approved.Amount()).GreaterThan(invoice.InvoiceTotal.Amount()) {
		return valueobject.Money{}, false, shared.NewDomainError("AMOUNT_EXCEEDS_OUTSTANDING",
			fmt.Sprintf("approving %s would over-allocate invoice %s",
				approved.String(), invoice.InvoiceNumber))
	}

	settles := approved.Equals(invoice.OutstandingBalance)
	return approved, settles, nil
}
