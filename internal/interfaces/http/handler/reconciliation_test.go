package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	reconciliationapp "github.com/finrec/backend/internal/application/reconciliation"
	"github.com/finrec/backend/internal/domain/reconciliation"
	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/finrec/backend/internal/infrastructure/cache"
	"github.com/finrec/backend/internal/infrastructure/config"
	"github.com/finrec/backend/internal/interfaces/http/dto"
	"github.com/finrec/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var handlerTime = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// MockPaymentRepository implements reconciliation.PaymentRepository for testing
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) FindForPeriod(ctx context.Context, start, end *time.Time) ([]reconciliation.Payment, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reconciliation.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*reconciliation.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Payment), args.Error(1)
}

func (m *MockPaymentRepository) Save(ctx context.Context, payment *reconciliation.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

// MockInvoiceRepository implements reconciliation.InvoiceRepository for testing
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) FindMatchable(ctx context.Context) ([]reconciliation.Invoice, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reconciliation.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*reconciliation.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Save(ctx context.Context, invoice *reconciliation.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) ApplyAllocation(ctx context.Context, invoiceID uuid.UUID, amount valueobject.Money) error {
	args := m.Called(ctx, invoiceID, amount)
	return args.Error(0)
}

// MockRunRepository implements reconciliation.RunRepository for testing
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Create(ctx context.Context, run *reconciliation.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) Update(ctx context.Context, run *reconciliation.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) SaveResult(ctx context.Context, run *reconciliation.Run, result *reconciliation.RunResult) error {
	args := m.Called(ctx, run, result)
	return args.Error(0)
}

func (m *MockRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*reconciliation.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Run), args.Error(1)
}

func (m *MockRunRepository) FindLatestCompleted(ctx context.Context) (*reconciliation.Run, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Run), args.Error(1)
}

func (m *MockRunRepository) FindMatchResults(ctx context.Context, runID uuid.UUID) ([]reconciliation.MatchResult, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reconciliation.MatchResult), args.Error(1)
}

func (m *MockRunRepository) FindMatchResultByID(ctx context.Context, id uuid.UUID) (*reconciliation.MatchResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.MatchResult), args.Error(1)
}

func (m *MockRunRepository) FindIssues(ctx context.Context, runID uuid.UUID, severity reconciliation.IssueSeverity) ([]reconciliation.Issue, error) {
	args := m.Called(ctx, runID, severity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reconciliation.Issue), args.Error(1)
}

func (m *MockRunRepository) SumAllocatedForInvoice(ctx context.Context, invoiceID uuid.UUID) (valueobject.Money, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).(valueobject.Money), args.Error(1)
}

func (m *MockRunRepository) SaveReviewDecision(ctx context.Context, result *reconciliation.MatchResult, decision *reconciliation.ReviewDecision) error {
	args := m.Called(ctx, result, decision)
	return args.Error(0)
}

// ===================== Fixtures =====================

func handlerPolicy() config.ReconciliationConfig {
	return config.ReconciliationConfig{
		Currency:           "KES",
		AutoMatchThreshold: 0.85,
		ReviewThreshold:    0.50,
		AmountTolerance:    1.0,
		DateWindowDays:     90,
		LargeAmountLimit:   100000,
		StaleAgeDays:       30,
		NearEqualEpsilon:   1.0,
		ReferenceWeight:    0.40,
		AmountWeight:       0.35,
		DateWeight:         0.15,
		CustomerWeight:     0.10,
		WorkerCount:        1,
		RunTimeout:         time.Minute,
		MaxPaymentsPerRun:  1000,
		MaxInvoicesPerRun:  1000,
	}
}

func paymentFixture(amount int64, reference string) reconciliation.Payment {
	return reconciliation.Payment{
		ID:         uuid.New(),
		Reference:  reference,
		Amount:     valueobject.NewMoneyKES(decimal.NewFromInt(amount)),
		ReceivedAt: handlerTime.AddDate(0, 0, -3),
		Gateway:    reconciliation.GatewayMobileMoney,
	}
}

func invoiceFixture(number string, outstanding int64) reconciliation.Invoice {
	total := valueobject.NewMoneyKES(decimal.NewFromInt(outstanding))
	return reconciliation.Invoice{
		ID:                 uuid.New(),
		InvoiceNumber:      number,
		CustomerID:         uuid.New(),
		InvoiceTotal:       total,
		AmountPaidSoFar:    valueobject.ZeroKES(),
		OutstandingBalance: total,
		IssuedAt:           handlerTime.AddDate(0, 0, -10),
		Status:             reconciliation.InvoiceStatusSent,
	}
}

type testEnv struct {
	engine   *gin.Engine
	payments *MockPaymentRepository
	invoices *MockInvoiceRepository
	runs     *MockRunRepository
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	payments := new(MockPaymentRepository)
	invoices := new(MockInvoiceRepository)
	runs := new(MockRunRepository)

	summaryCache := cache.NewInMemorySummaryCache(time.Minute)
	runService := reconciliationapp.NewRunService(payments, invoices, runs, summaryCache, handlerPolicy())
	reviewService := reconciliationapp.NewReviewService(payments, invoices, runs, summaryCache)

	h := NewReconciliationHandler(runService, reviewService)

	engine := gin.New()
	engine.Use(middleware.RequestID())
	api := engine.Group("/api/v1/reconciliation")
	api.POST("/runs", h.StartRun)
	api.GET("/runs/:id", h.GetRun)
	api.GET("/runs/:id/issues", h.ListIssues)
	api.GET("/summary/latest", h.LatestSummary)
	api.POST("/results/:id/review", h.Review)

	return &testEnv{engine: engine, payments: payments, invoices: invoices, runs: runs}
}

func performJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// ===================== Tests =====================

func TestStartRunEndpoint(t *testing.T) {
	t.Run("completes and returns the run with summary", func(t *testing.T) {
		env := setupTestRouter(t)

		invoice := invoiceFixture("INV-100", 5000)
		payment := paymentFixture(5000, "INV-100")

		env.payments.On("FindForPeriod", mock.Anything, (*time.Time)(nil), (*time.Time)(nil)).
			Return([]reconciliation.Payment{payment}, nil)
		env.invoices.On("FindMatchable", mock.Anything).
			Return([]reconciliation.Invoice{invoice}, nil)
		env.runs.On("Create", mock.Anything, mock.Anything).Return(nil)
		env.runs.On("Update", mock.Anything, mock.Anything).Return(nil)
		env.runs.On("SaveResult", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		w := performJSON(t, env.engine, http.MethodPost, "/api/v1/reconciliation/runs", gin.H{})

		require.Equal(t, http.StatusCreated, w.Code)
		resp := decodeResponse(t, w)
		assert.True(t, resp.Success)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "COMPLETED", data["status"])
		require.NotNil(t, data["summary"])
		summary := data["summary"].(map[string]interface{})
		assert.Equal(t, float64(100), summary["match_rate"])
		assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		env := setupTestRouter(t)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/runs",
			bytes.NewBufferString(`{"period_start": "not-a-date"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		env.engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		env.runs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("rejects unusable policy overrides with 422", func(t *testing.T) {
		env := setupTestRouter(t)

		w := performJSON(t, env.engine, http.MethodPost, "/api/v1/reconciliation/runs", gin.H{
			"overrides": gin.H{"reference_weight": 0.70},
		})

		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeInvalidPolicy, resp.Error.Code)
		assert.NotEmpty(t, resp.Error.RequestID)
	})

	t.Run("inverted period yields 400", func(t *testing.T) {
		env := setupTestRouter(t)

		w := performJSON(t, env.engine, http.MethodPost, "/api/v1/reconciliation/runs", gin.H{
			"period_start": "2026-03-31T00:00:00Z",
			"period_end":   "2026-03-01T00:00:00Z",
		})

		require.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidationRange, resp.Error.Code)
	})
}

func TestGetRunEndpoint(t *testing.T) {
	t.Run("returns run with results", func(t *testing.T) {
		env := setupTestRouter(t)

		run := reconciliation.NewRun(valueobject.KES, nil, nil, handlerTime)
		invoiceID := uuid.New()
		results := []reconciliation.MatchResult{
			{
				ID:            uuid.New(),
				PaymentID:     uuid.New(),
				InvoiceID:     &invoiceID,
				State:         reconciliation.MatchStateMatched,
				Confidence:    0.93,
				MatchedAmount: valueobject.NewMoneyKES(decimal.NewFromInt(5000)),
				Reasons:       []string{reconciliation.ReasonReferenceExact},
				CreatedAt:     handlerTime,
			},
		}

		env.runs.On("FindByID", mock.Anything, run.ID).Return(run, nil)
		env.runs.On("FindMatchResults", mock.Anything, run.ID).Return(results, nil)

		w := performJSON(t, env.engine, http.MethodGet, "/api/v1/reconciliation/runs/"+run.ID.String(), nil)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, run.ID.String(), data["run"].(map[string]interface{})["id"])
		assert.Len(t, data["results"], 1)
	})

	t.Run("unknown run yields 404", func(t *testing.T) {
		env := setupTestRouter(t)
		env.runs.On("FindByID", mock.Anything, mock.Anything).Return(nil, nil)

		w := performJSON(t, env.engine, http.MethodGet, "/api/v1/reconciliation/runs/"+uuid.NewString(), nil)

		require.Equal(t, http.StatusNotFound, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	})

	t.Run("malformed run id yields 400", func(t *testing.T) {
		env := setupTestRouter(t)

		w := performJSON(t, env.engine, http.MethodGet, "/api/v1/reconciliation/runs/not-a-uuid", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		env.runs.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})
}

func TestListIssuesEndpoint(t *testing.T) {
	t.Run("filters by severity", func(t *testing.T) {
		env := setupTestRouter(t)

		run := reconciliation.NewRun(valueobject.KES, nil, nil, handlerTime)
		issues := []reconciliation.Issue{
			{
				ID:          uuid.New(),
				Type:        reconciliation.IssueTypeLargeUnmatched,
				Severity:    reconciliation.SeverityHigh,
				Description: "unmatched payment of 150000.00 KES exceeds large amount limit",
			},
		}

		env.runs.On("FindByID", mock.Anything, run.ID).Return(run, nil)
		env.runs.On("FindIssues", mock.Anything, run.ID, reconciliation.SeverityHigh).Return(issues, nil)

		w := performJSON(t, env.engine, http.MethodGet,
			"/api/v1/reconciliation/runs/"+run.ID.String()+"/issues?severity=HIGH", nil)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		data := resp.Data.([]interface{})
		require.Len(t, data, 1)
		assert.Equal(t, "LARGE_UNMATCHED", data[0].(map[string]interface{})["type"])
	})

	t.Run("unknown severity yields 400", func(t *testing.T) {
		env := setupTestRouter(t)
		run := reconciliation.NewRun(valueobject.KES, nil, nil, handlerTime)
		env.runs.On("FindByID", mock.Anything, run.ID).Return(run, nil)

		w := performJSON(t, env.engine, http.MethodGet,
			"/api/v1/reconciliation/runs/"+run.ID.String()+"/issues?severity=CRITICAL", nil)

		require.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeValidationFormat, resp.Error.Code)
	})
}

func TestLatestSummaryEndpoint(t *testing.T) {
	t.Run("404 before any run completes", func(t *testing.T) {
		env := setupTestRouter(t)
		env.runs.On("FindLatestCompleted", mock.Anything).Return(nil, nil)

		w := performJSON(t, env.engine, http.MethodGet, "/api/v1/reconciliation/summary/latest", nil)

		require.Equal(t, http.StatusNotFound, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	})

	t.Run("serves summary from completed run", func(t *testing.T) {
		env := setupTestRouter(t)

		run := reconciliation.NewRun(valueobject.KES, nil, nil, handlerTime)
		require.NoError(t, run.Start(handlerTime))
		require.NoError(t, run.Complete(reconciliation.RunSummary{
			GeneratedAt:   handlerTime,
			TotalPayments: 4,
			MatchedCount:  3,
			MatchRate:     75.0,
		}, 4, 6, handlerTime))

		env.runs.On("FindLatestCompleted", mock.Anything).Return(run, nil)

		w := performJSON(t, env.engine, http.MethodGet, "/api/v1/reconciliation/summary/latest", nil)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, run.ID.String(), data["run_id"])
		assert.Equal(t, 75.0, data["summary"].(map[string]interface{})["match_rate"])
	})
}

func TestReviewEndpoint(t *testing.T) {
	needsReview := func(invoiceID uuid.UUID) *reconciliation.MatchResult {
		return &reconciliation.MatchResult{
			ID:            uuid.New(),
			PaymentID:     uuid.New(),
			InvoiceID:     &invoiceID,
			State:         reconciliation.MatchStateNeedsReview,
			Confidence:    0.71,
			MatchedAmount: valueobject.ZeroKES(),
			Reasons:       []string{reconciliation.ReasonReferencePartial},
			CreatedAt:     handlerTime,
		}
	}

	t.Run("confirm settles the match", func(t *testing.T) {
		env := setupTestRouter(t)

		invoice := invoiceFixture("INV-300", 4000)
		payment := paymentFixture(4000, "INV-300")
		result := needsReview(invoice.ID)
		result.PaymentID = payment.ID

		env.runs.On("FindMatchResultByID", mock.Anything, result.ID).Return(result, nil)
		env.payments.On("FindByID", mock.Anything, payment.ID).Return(&payment, nil)
		env.invoices.On("FindByID", mock.Anything, invoice.ID).Return(&invoice, nil)
		env.runs.On("SumAllocatedForInvoice", mock.Anything, invoice.ID).
			Return(valueobject.ZeroKES(), nil)
		env.runs.On("SaveReviewDecision", mock.Anything, result, mock.Anything).Return(nil)

		w := performJSON(t, env.engine, http.MethodPost,
			"/api/v1/reconciliation/results/"+result.ID.String()+"/review", gin.H{
				"outcome":         "CONFIRMED",
				"approved_amount": 4000,
				"reviewer":        "ops@finrec.example",
			})

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "MATCHED", data["result"].(map[string]interface{})["state"])
		assert.Equal(t, "CONFIRMED", data["decision"].(map[string]interface{})["outcome"])
	})

	t.Run("binding rejects unknown outcome", func(t *testing.T) {
		env := setupTestRouter(t)

		w := performJSON(t, env.engine, http.MethodPost,
			"/api/v1/reconciliation/results/"+uuid.NewString()+"/review", gin.H{
				"outcome":  "MAYBE",
				"reviewer": "ops",
			})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		env.runs.AssertNotCalled(t, "FindMatchResultByID", mock.Anything, mock.Anything)
	})

	t.Run("over-allocation yields 422", func(t *testing.T) {
		env := setupTestRouter(t)

		invoice := invoiceFixture("INV-301", 1000)
		payment := paymentFixture(2000, "INV-301")
		result := needsReview(invoice.ID)
		result.PaymentID = payment.ID

		env.runs.On("FindMatchResultByID", mock.Anything, result.ID).Return(result, nil)
		env.payments.On("FindByID", mock.Anything, payment.ID).Return(&payment, nil)
		env.invoices.On("FindByID", mock.Anything, invoice.ID).Return(&invoice, nil)

		w := performJSON(t, env.engine, http.MethodPost,
			"/api/v1/reconciliation/results/"+result.ID.String()+"/review", gin.H{
				"outcome":         "CONFIRMED",
				"approved_amount": 1500,
				"reviewer":        "ops@finrec.example",
			})

		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeAmountExceedsOutstanding, resp.Error.Code)
	})

	t.Run("approving more than the payment yields 422", func(t *testing.T) {
		env := setupTestRouter(t)

		invoice := invoiceFixture("INV-302", 4000)
		payment := paymentFixture(500, "INV-302")
		result := needsReview(invoice.ID)
		result.PaymentID = payment.ID

		env.runs.On("FindMatchResultByID", mock.Anything, result.ID).Return(result, nil)
		env.payments.On("FindByID", mock.Anything, payment.ID).Return(&payment, nil)
		env.invoices.On("FindByID", mock.Anything, invoice.ID).Return(&invoice, nil)

		w := performJSON(t, env.engine, http.MethodPost,
			"/api/v1/reconciliation/results/"+result.ID.String()+"/review", gin.H{
				"outcome":         "CONFIRMED",
				"approved_amount": 4000,
				"reviewer":        "ops@finrec.example",
			})

		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeAmountExceedsPayment, resp.Error.Code)
		env.runs.AssertNotCalled(t, "SaveReviewDecision", mock.Anything, mock.Anything, mock.Anything)
	})
}
