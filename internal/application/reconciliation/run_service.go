package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/finrec/backend/internal/domain/reconciliation"
	"github.com/finrec/backend/internal/domain/shared"
	"github.com/finrec/backend/internal/domain/shared/valueobject"
	"github.com/finrec/backend/internal/infrastructure/cache"
	"github.com/finrec/backend/internal/infrastructure/config"
	"github.com/finrec/backend/internal/infrastructure/logger"
	"github.com/finrec/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RunService orchestrates reconciliation runs: it snapshots the payment
// and invoice feeds, drives the matching engine, and persists the run
// output atomically. The engine itself performs no I/O.
type RunService struct {
	paymentRepo  reconciliation.PaymentRepository
	invoiceRepo  reconciliation.InvoiceRepository
	runRepo      reconciliation.RunRepository
	summaryCache cache.SummaryCache
	engine       *reconciliation.Engine
	policy       config.ReconciliationConfig
	metrics      *telemetry.ReconciliationMetrics

	// now is injectable for tests
	now func() time.Time
}

// RunServiceOption is a functional option for configuring the RunService
type RunServiceOption func(*RunService)

// WithMetrics attaches reconciliation metrics recording
func WithMetrics(m *telemetry.ReconciliationMetrics) RunServiceOption {
	return func(s *RunService) {
		s.metrics = m
	}
}

// WithClock overrides the service clock, for tests
func WithClock(now func() time.Time) RunServiceOption {
	return func(s *RunService) {
		s.now = now
	}
}

// NewRunService creates a new RunService
func NewRunService(
	paymentRepo reconciliation.PaymentRepository,
	invoiceRepo reconciliation.InvoiceRepository,
	runRepo reconciliation.RunRepository,
	summaryCache cache.SummaryCache,
	policy config.ReconciliationConfig,
	opts ...RunServiceOption,
) *RunService {
	s := &RunService{
		paymentRepo:  paymentRepo,
		invoiceRepo:  invoiceRepo,
		runRepo:      runRepo,
		summaryCache: summaryCache,
		engine:       reconciliation.NewEngine(reconciliation.WithWorkerCount(policy.WorkerCount)),
		policy:       policy,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PolicyOverrides carries per-run overrides of the matching policy.
// Nil fields keep the configured value. The merged policy is validated
// as a whole before any record is touched.
type PolicyOverrides struct {
	AutoMatchThreshold *float64 `json:"auto_match_threshold,omitempty"`
	ReviewThreshold    *float64 `json:"review_threshold,omitempty"`
	AmountTolerance    *float64 `json:"amount_tolerance,omitempty"`
	DateWindowDays     *int     `json:"date_window_days,omitempty"`
	ReferenceWeight    *float64 `json:"reference_weight,omitempty"`
	AmountWeight       *float64 `json:"amount_weight,omitempty"`
	DateWeight         *float64 `json:"date_weight,omitempty"`
	CustomerWeight     *float64 `json:"customer_weight,omitempty"`
}

// StartRunRequest describes one requested reconciliation run
type StartRunRequest struct {
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	Overrides   *PolicyOverrides
}

// StartRun executes a reconciliation run synchronously and returns the
// completed (or failed) run record. Config errors surface before the run
// record is created; engine failures leave a FAILED run behind.
func (s *RunService) StartRun(ctx context.Context, req StartRunRequest) (*reconciliation.Run, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "start_run")
	defer span.End()

	domainCfg, err := s.buildConfig(req.Overrides)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if req.PeriodStart != nil && req.PeriodEnd != nil && req.PeriodEnd.Before(*req.PeriodStart) {
		err := shared.NewDomainError("INVALID_PERIOD", "period end must not precede period start")
		telemetry.RecordError(span, err)
		return nil, err
	}

	run := reconciliation.NewRun(domainCfg.Currency, req.PeriodStart, req.PeriodEnd, s.now())
	if err := s.runRepo.Create(ctx, run); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	ctx, _ = logger.WithRunID(ctx, logger.FromContext(ctx), run.ID.String())
	log := logger.L(ctx)
	telemetry.SetAttribute(span, telemetry.SpanAttrRunID, run.ID.String())

	if err := run.Start(s.now()); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.runRepo.Update(ctx, run); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to mark run running: %w", err)
	}

	result, execErr := s.execute(ctx, run, domainCfg, req)
	if execErr != nil {
		log.Error("Reconciliation run failed", zap.Error(execErr))
		telemetry.RecordError(span, execErr)
		if failErr := run.Fail(execErr.Error(), s.now()); failErr == nil {
			if updateErr := s.runRepo.Update(ctx, run); updateErr != nil {
				log.Error("Failed to persist run failure", zap.Error(updateErr))
			}
		}
		s.recordRunMetrics(ctx, run)
		return run, execErr
	}

	if err := run.Complete(result.Summary, run.PaymentCount, run.InvoiceCount, s.now()); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.runRepo.SaveResult(ctx, run, result); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to persist run result: %w", err)
	}

	if err := s.summaryCache.SetLatest(ctx, &cache.LatestSummary{
		RunID:   run.ID,
		Summary: result.Summary,
	}); err != nil {
		// cached reads fall back to the database
		log.Warn("Failed to cache run summary", zap.Error(err))
	}

	s.recordRunMetrics(ctx, run)
	s.recordResultMetrics(ctx, result)

	log.Info("Reconciliation run completed",
		zap.Int("payments", run.PaymentCount),
		zap.Int("invoices", run.InvoiceCount),
		zap.Float64("match_rate", result.Summary.MatchRate),
		zap.Int("issues", result.Summary.IssueCount),
	)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrRunStatus, string(run.Status),
		"payment_count", run.PaymentCount,
		"invoice_count", run.InvoiceCount,
	)

	return run, nil
}

// execute snapshots the feeds and drives the engine under the run timeout.
func (s *RunService) execute(ctx context.Context, run *reconciliation.Run, domainCfg reconciliation.Config, req StartRunRequest) (*reconciliation.RunResult, error) {
	payments, err := s.paymentRepo.FindForPeriod(ctx, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment snapshot: %w", err)
	}
	if s.policy.MaxPaymentsPerRun > 0 && len(payments) > s.policy.MaxPaymentsPerRun {
		return nil, shared.NewDomainError("RUN_TOO_LARGE",
			fmt.Sprintf("payment snapshot exceeds limit of %d records", s.policy.MaxPaymentsPerRun))
	}

	invoices, err := s.invoiceRepo.FindMatchable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice snapshot: %w", err)
	}
	if s.policy.MaxInvoicesPerRun > 0 && len(invoices) > s.policy.MaxInvoicesPerRun {
		return nil, shared.NewDomainError("RUN_TOO_LARGE",
			fmt.Sprintf("invoice snapshot exceeds limit of %d records", s.policy.MaxInvoicesPerRun))
	}

	run.PaymentCount = len(payments)
	run.InvoiceCount = len(invoices)

	runCtx := ctx
	if s.policy.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.policy.RunTimeout)
		defer cancel()
	}

	return s.engine.Reconcile(runCtx, reconciliation.Request{
		Payments:    payments,
		Invoices:    invoices,
		Config:      domainCfg,
		Now:         s.now(),
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
	})
}

// GetRun returns a run with its match results. Results are empty for
// pending and failed runs.
func (s *RunService) GetRun(ctx context.Context, id uuid.UUID) (*reconciliation.Run, []reconciliation.MatchResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "get_run",
		telemetry.WithAttribute(telemetry.SpanAttrRunID, id.String()))
	defer span.End()

	run, err := s.runRepo.FindByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return nil, nil, shared.NewDomainError("RUN_NOT_FOUND", "reconciliation run not found")
	}

	results, err := s.runRepo.FindMatchResults(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, fmt.Errorf("failed to load match results: %w", err)
	}
	return run, results, nil
}

// ListIssues returns the issues of a run ordered by severity, optionally
// filtered to one severity level.
func (s *RunService) ListIssues(ctx context.Context, runID uuid.UUID, severity string) ([]reconciliation.Issue, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "list_issues",
		telemetry.WithAttribute(telemetry.SpanAttrRunID, runID.String()))
	defer span.End()

	var sev reconciliation.IssueSeverity
	if severity != "" {
		sev = reconciliation.IssueSeverity(severity)
		switch sev {
		case reconciliation.SeverityHigh, reconciliation.SeverityMedium, reconciliation.SeverityLow:
		default:
			err := shared.NewDomainError("INVALID_SEVERITY",
				"severity must be one of HIGH, MEDIUM, LOW")
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	run, err := s.runRepo.FindByID(ctx, runID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return nil, shared.NewDomainError("RUN_NOT_FOUND", "reconciliation run not found")
	}

	issues, err := s.runRepo.FindIssues(ctx, runID, sev)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load issues: %w", err)
	}
	return issues, nil
}

// LatestSummary returns the summary of the most recent completed run,
// serving from cache when possible. A nil return with no error means no
// run has completed yet.
func (s *RunService) LatestSummary(ctx context.Context) (*cache.LatestSummary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "latest_summary")
	defer span.End()

	cached, err := s.summaryCache.GetLatest(ctx)
	if err != nil {
		logger.L(ctx).Warn("Summary cache read failed", zap.Error(err))
	}
	if cached != nil {
		telemetry.SetAttribute(span, "cache_hit", true)
		return cached, nil
	}

	run, err := s.runRepo.FindLatestCompleted(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load latest completed run: %w", err)
	}
	if run == nil || run.Summary == nil {
		return nil, nil
	}

	latest := &cache.LatestSummary{RunID: run.ID, Summary: *run.Summary}
	if err := s.summaryCache.SetLatest(ctx, latest); err != nil {
		logger.L(ctx).Warn("Failed to repopulate summary cache", zap.Error(err))
	}
	return latest, nil
}

// buildConfig merges configured policy with per-run overrides into a
// validated domain config.
func (s *RunService) buildConfig(overrides *PolicyOverrides) (reconciliation.Config, error) {
	p := s.policy

	cfg := reconciliation.Config{
		Currency:             valueobject.Currency(p.Currency),
		AutoMatchThreshold:   p.AutoMatchThreshold,
		ReviewThreshold:      p.ReviewThreshold,
		AmountTolerance:      decimal.NewFromFloat(p.AmountTolerance),
		DateWindowDays:       p.DateWindowDays,
		LargeAmountThreshold: decimal.NewFromFloat(p.LargeAmountLimit),
		StaleAgeDays:         p.StaleAgeDays,
		NearEqualEpsilon:     decimal.NewFromFloat(p.NearEqualEpsilon),
		Weights: reconciliation.SignalWeights{
			Reference: p.ReferenceWeight,
			Amount:    p.AmountWeight,
			Date:      p.DateWeight,
			Customer:  p.CustomerWeight,
		},
	}

	if overrides != nil {
		if overrides.AutoMatchThreshold != nil {
			cfg.AutoMatchThreshold = *overrides.AutoMatchThreshold
		}
		if overrides.ReviewThreshold != nil {
			cfg.ReviewThreshold = *overrides.ReviewThreshold
		}
		if overrides.AmountTolerance != nil {
			cfg.AmountTolerance = decimal.NewFromFloat(*overrides.AmountTolerance)
		}
		if overrides.DateWindowDays != nil {
			cfg.DateWindowDays = *overrides.DateWindowDays
		}
		if overrides.ReferenceWeight != nil {
			cfg.Weights.Reference = *overrides.ReferenceWeight
		}
		if overrides.AmountWeight != nil {
			cfg.Weights.Amount = *overrides.AmountWeight
		}
		if overrides.DateWeight != nil {
			cfg.Weights.Date = *overrides.DateWeight
		}
		if overrides.CustomerWeight != nil {
			cfg.Weights.Customer = *overrides.CustomerWeight
		}
	}

	if err := cfg.Validate(); err != nil {
		return reconciliation.Config{}, err
	}
	return cfg, nil
}

func (s *RunService) recordRunMetrics(ctx context.Context, run *reconciliation.Run) {
	if s.metrics == nil || run.CompletedAt == nil {
		return
	}
	s.metrics.RecordRunFinished(ctx, string(run.Status), run.CompletedAt.Sub(run.StartedAt))
}

func (s *RunService) recordResultMetrics(ctx context.Context, result *reconciliation.RunResult) {
	if s.metrics == nil {
		return
	}
	counts := map[reconciliation.MatchState]int64{}
	for _, mr := range result.MatchResults {
		counts[mr.State]++
	}
	for state, count := range counts {
		s.metrics.RecordPaymentsProcessed(ctx, string(state), count)
	}
	for _, issue := range result.Issues {
		s.metrics.RecordIssue(ctx, string(issue.Type), string(issue.Severity))
	}
	s.metrics.RecordMatchRate(ctx, result.Summary.MatchRate)
}
