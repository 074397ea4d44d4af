package handler

import (
	"errors"
	"net/http"
	"time"

	reconciliationapp "github.com/finrec/backend/internal/application/reconciliation"
	"github.com/finrec/backend/internal/domain/reconciliation"
	"github.com/finrec/backend/internal/domain/shared"
	"github.com/finrec/backend/internal/interfaces/http/dto"
	"github.com/finrec/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationHandler handles reconciliation API endpoints
type ReconciliationHandler struct {
	BaseHandler
	runService    *reconciliationapp.RunService
	reviewService *reconciliationapp.ReviewService
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(runService *reconciliationapp.RunService, reviewService *reconciliationapp.ReviewService) *ReconciliationHandler {
	return &ReconciliationHandler{
		runService:    runService,
		reviewService: reviewService,
	}
}

// ===================== Request/Response DTOs =====================

// StartRunRequest is the request body for starting a reconciliation run
type StartRunRequest struct {
	PeriodStart *time.Time                         `json:"period_start,omitempty"`
	PeriodEnd   *time.Time                         `json:"period_end,omitempty"`
	Overrides   *reconciliationapp.PolicyOverrides `json:"overrides,omitempty"`
}

// ReviewRequest is the request body for reviewing a match result
type ReviewRequest struct {
	Outcome        string   `json:"outcome" binding:"required,oneof=CONFIRMED REJECTED"`
	ApprovedAmount *float64 `json:"approved_amount,omitempty"`
	Reviewer       string   `json:"reviewer" binding:"required"`
	Note           string   `json:"note,omitempty"`
}

// RunResponse represents a reconciliation run in API responses
type RunResponse struct {
	ID            string              `json:"id"`
	Status        string              `json:"status"`
	Currency      string              `json:"currency"`
	PeriodStart   *time.Time          `json:"period_start,omitempty"`
	PeriodEnd     *time.Time          `json:"period_end,omitempty"`
	PaymentCount  int                 `json:"payment_count"`
	InvoiceCount  int                 `json:"invoice_count"`
	StartedAt     time.Time           `json:"started_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	Summary       *RunSummaryResponse `json:"summary,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// RunDetailResponse is a run together with its match results
type RunDetailResponse struct {
	Run     RunResponse           `json:"run"`
	Results []MatchResultResponse `json:"results"`
}

// MatchResultResponse represents a match result in API responses
type MatchResultResponse struct {
	ID            string    `json:"id"`
	PaymentID     string    `json:"payment_id"`
	InvoiceID     *string   `json:"invoice_id,omitempty"`
	State         string    `json:"state"`
	Confidence    float64   `json:"confidence"`
	MatchedAmount float64   `json:"matched_amount"`
	Reasons       []string  `json:"reasons"`
	CreatedAt     time.Time `json:"created_at"`
}

// IssueResponse represents a detected anomaly in API responses
type IssueResponse struct {
	ID                string   `json:"id"`
	Type              string   `json:"type"`
	Severity          string   `json:"severity"`
	Description       string   `json:"description"`
	RelatedPaymentIDs []string `json:"related_payment_ids,omitempty"`
	RelatedInvoiceIDs []string `json:"related_invoice_ids,omitempty"`
	AmountInvolved    *float64 `json:"amount_involved,omitempty"`
}

// RunSummaryResponse represents a run summary in API responses
type RunSummaryResponse struct {
	GeneratedAt time.Time  `json:"generated_at"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`

	TotalPayments    int `json:"total_payments"`
	MatchedCount     int `json:"matched_count"`
	PartialCount     int `json:"partial_count"`
	UnmatchedCount   int `json:"unmatched_count"`
	NeedsReviewCount int `json:"needs_review_count"`

	MatchedAmount     float64 `json:"matched_amount"`
	PartialAmount     float64 `json:"partial_amount"`
	UnmatchedAmount   float64 `json:"unmatched_amount"`
	NeedsReviewAmount float64 `json:"needs_review_amount"`

	MatchRate          float64 `json:"match_rate"`
	TotalOutstanding   float64 `json:"total_outstanding"`
	IssueCount         int     `json:"issue_count"`
	HighSeverityIssues int     `json:"high_severity_issues"`
}

// LatestSummaryResponse is the dashboard payload for the latest completed run
type LatestSummaryResponse struct {
	RunID   string             `json:"run_id"`
	Summary RunSummaryResponse `json:"summary"`
}

// ReviewResponse is the result of a review decision
type ReviewResponse struct {
	Result   MatchResultResponse    `json:"result"`
	Decision ReviewDecisionResponse `json:"decision"`
}

// ReviewDecisionResponse represents the recorded decision
type ReviewDecisionResponse struct {
	ID            string    `json:"id"`
	MatchResultID string    `json:"match_result_id"`
	Outcome       string    `json:"outcome"`
	Reviewer      string    `json:"reviewer"`
	Note          string    `json:"note,omitempty"`
	DecidedAt     time.Time `json:"decided_at"`
}

// ===================== Handlers =====================

// StartRun executes a reconciliation run over the current payment and
// invoice snapshot. The run is synchronous: the response carries the
// completed run including its summary. A run that starts but fails mid-way
// is persisted as FAILED and surfaces as an error response.
func (h *ReconciliationHandler) StartRun(c *gin.Context) {
	var req StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	run, err := h.runService.StartRun(c.Request.Context(), reconciliationapp.StartRunRequest{
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Overrides:   req.Overrides,
	})
	if err != nil {
		if errors.Is(err, shared.ErrEmptyFeed) {
			h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeBusinessRule, err.Error())
			return
		}
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, toRunResponse(run))
}

// GetRun returns a run record with its match results
func (h *ReconciliationHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID format")
		return
	}

	run, results, err := h.runService.GetRun(c.Request.Context(), runID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	resp := RunDetailResponse{
		Run:     toRunResponse(run),
		Results: make([]MatchResultResponse, 0, len(results)),
	}
	for i := range results {
		resp.Results = append(resp.Results, toMatchResultResponse(&results[i]))
	}

	h.Success(c, resp)
}

// ListIssues returns the issues detected by a run, optionally filtered
// by severity (HIGH, MEDIUM or LOW)
func (h *ReconciliationHandler) ListIssues(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID format")
		return
	}

	severity := c.Query("severity")

	issues, err := h.runService.ListIssues(c.Request.Context(), runID, severity)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	resp := make([]IssueResponse, 0, len(issues))
	for i := range issues {
		resp = append(resp, toIssueResponse(&issues[i]))
	}

	h.Success(c, resp)
}

// LatestSummary returns the summary of the most recent completed run.
// 404 means no run has completed yet.
func (h *ReconciliationHandler) LatestSummary(c *gin.Context) {
	latest, err := h.runService.LatestSummary(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	if latest == nil {
		h.NotFound(c, "No completed reconciliation run yet")
		return
	}

	h.Success(c, LatestSummaryResponse{
		RunID:   latest.RunID.String(),
		Summary: toRunSummaryResponse(&latest.Summary),
	})
}

// Review records a human decision on a needs_review match result
func (h *ReconciliationHandler) Review(c *gin.Context) {
	resultID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid match result ID format")
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	appReq := reconciliationapp.ReviewRequest{
		MatchResultID: resultID,
		Outcome:       reconciliation.ReviewOutcome(req.Outcome),
		Reviewer:      req.Reviewer,
		Note:          req.Note,
	}
	if req.ApprovedAmount != nil {
		amount := decimal.NewFromFloat(*req.ApprovedAmount)
		appReq.ApprovedAmount = &amount
	}

	result, decision, err := h.reviewService.Review(c.Request.Context(), appReq)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, ReviewResponse{
		Result: toMatchResultResponse(result),
		Decision: ReviewDecisionResponse{
			ID:            decision.ID.String(),
			MatchResultID: decision.MatchResultID.String(),
			Outcome:       string(decision.Outcome),
			Reviewer:      decision.Reviewer,
			Note:          decision.Note,
			DecidedAt:     decision.DecidedAt,
		},
	})
}

// ===================== Mappers =====================

func toRunResponse(run *reconciliation.Run) RunResponse {
	resp := RunResponse{
		ID:            run.ID.String(),
		Status:        string(run.Status),
		Currency:      string(run.Currency),
		PeriodStart:   run.PeriodStart,
		PeriodEnd:     run.PeriodEnd,
		PaymentCount:  run.PaymentCount,
		InvoiceCount:  run.InvoiceCount,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
		FailureReason: run.FailureReason,
		CreatedAt:     run.CreatedAt,
		UpdatedAt:     run.UpdatedAt,
	}
	if run.Summary != nil {
		summary := toRunSummaryResponse(run.Summary)
		resp.Summary = &summary
	}
	return resp
}

func toMatchResultResponse(result *reconciliation.MatchResult) MatchResultResponse {
	resp := MatchResultResponse{
		ID:            result.ID.String(),
		PaymentID:     result.PaymentID.String(),
		State:         string(result.State),
		Confidence:    result.Confidence,
		MatchedAmount: result.MatchedAmount.Amount().InexactFloat64(),
		Reasons:       result.Reasons,
		CreatedAt:     result.CreatedAt,
	}
	if result.InvoiceID != nil {
		invoiceID := result.InvoiceID.String()
		resp.InvoiceID = &invoiceID
	}
	return resp
}

func toIssueResponse(issue *reconciliation.Issue) IssueResponse {
	resp := IssueResponse{
		ID:          issue.ID.String(),
		Type:        string(issue.Type),
		Severity:    string(issue.Severity),
		Description: issue.Description,
	}
	for _, id := range issue.RelatedPaymentIDs {
		resp.RelatedPaymentIDs = append(resp.RelatedPaymentIDs, id.String())
	}
	for _, id := range issue.RelatedInvoiceIDs {
		resp.RelatedInvoiceIDs = append(resp.RelatedInvoiceIDs, id.String())
	}
	if issue.AmountInvolved != nil {
		amount := issue.AmountInvolved.Amount().InexactFloat64()
		resp.AmountInvolved = &amount
	}
	return resp
}

func toRunSummaryResponse(summary *reconciliation.RunSummary) RunSummaryResponse {
	return RunSummaryResponse{
		GeneratedAt: summary.GeneratedAt,
		PeriodStart: summary.PeriodStart,
		PeriodEnd:   summary.PeriodEnd,

		TotalPayments:    summary.TotalPayments,
		MatchedCount:     summary.MatchedCount,
		PartialCount:     summary.PartialCount,
		UnmatchedCount:   summary.UnmatchedCount,
		NeedsReviewCount: summary.NeedsReviewCount,

		MatchedAmount:     summary.MatchedAmount.Amount().InexactFloat64(),
		PartialAmount:     summary.PartialAmount.Amount().InexactFloat64(),
		UnmatchedAmount:   summary.UnmatchedAmount.Amount().InexactFloat64(),
		NeedsReviewAmount: summary.NeedsReviewAmount.Amount().InexactFloat64(),

		MatchRate:          summary.MatchRate,
		TotalOutstanding:   summary.TotalOutstanding.Amount().InexactFloat64(),
		IssueCount:         summary.IssueCount,
		HighSeverityIssues: summary.HighSeverityIssues,
	}
}
