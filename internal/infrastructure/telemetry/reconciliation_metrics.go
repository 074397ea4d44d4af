package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ReconciliationMetrics tracks run activity, match outcomes, detected
// issues and review decisions. Application services record against it;
// export is handled by the configured MeterProvider.
type ReconciliationMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	runsTotal         *Counter
	runDuration       *Histogram
	paymentsProcessed *Counter
	issuesTotal       *Counter
	reviewsTotal      *Counter

	matchRate *FloatGauge
}

// ReconciliationMetricsConfig holds configuration for reconciliation metrics.
type ReconciliationMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewReconciliationMetrics creates a ReconciliationMetrics instance.
func NewReconciliationMetrics(cfg ReconciliationMetricsConfig) (*ReconciliationMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rm := &ReconciliationMetrics{
		meter:  cfg.Meter,
		logger: logger,
	}

	var err error

	rm.runsTotal, err = NewCounter(
		cfg.Meter,
		"finrec_reconciliation_runs_total",
		"Total number of reconciliation runs by terminal status",
		"{runs}",
	)
	if err != nil {
		return nil, err
	}

	rm.runDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "finrec_reconciliation_run_duration_seconds",
		Description: "Wall-clock duration of reconciliation runs",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	rm.paymentsProcessed, err = NewCounter(
		cfg.Meter,
		"finrec_payments_processed_total",
		"Total payments classified across runs, by match state",
		"{payments}",
	)
	if err != nil {
		return nil, err
	}

	rm.issuesTotal, err = NewCounter(
		cfg.Meter,
		"finrec_reconciliation_issues_total",
		"Total issues detected across runs",
		"{issues}",
	)
	if err != nil {
		return nil, err
	}

	rm.reviewsTotal, err = NewCounter(
		cfg.Meter,
		"finrec_review_decisions_total",
		"Total review decisions recorded",
		"{decisions}",
	)
	if err != nil {
		return nil, err
	}

	rm.matchRate, err = NewFloatGauge(
		cfg.Meter,
		"finrec_match_rate_percent",
		"Match rate of the most recent completed run",
		"%",
	)
	if err != nil {
		return nil, err
	}

	return rm, nil
}

// RecordRunFinished records a terminal run with its duration.
func (rm *ReconciliationMetrics) RecordRunFinished(ctx context.Context, status string, duration time.Duration) {
	rm.runsTotal.Inc(ctx, AttrRunStatus.String(status))
	rm.runDuration.RecordDuration(ctx, duration, AttrRunStatus.String(status))
}

// RecordPaymentsProcessed records how many payments landed in a match state.
func (rm *ReconciliationMetrics) RecordPaymentsProcessed(ctx context.Context, state string, count int64) {
	if count <= 0 {
		return
	}
	rm.paymentsProcessed.Add(ctx, count, AttrMatchState.String(state))
}

// RecordIssue records one detected issue.
func (rm *ReconciliationMetrics) RecordIssue(ctx context.Context, issueType, severity string) {
	rm.issuesTotal.Inc(ctx,
		AttrIssueType.String(issueType),
		AttrIssueSeverity.String(severity),
	)
}

// RecordReviewDecision records a review decision by outcome.
func (rm *ReconciliationMetrics) RecordReviewDecision(ctx context.Context, outcome string) {
	rm.reviewsTotal.Inc(ctx, AttrReviewOutcome.String(outcome))
}

// RecordMatchRate records the match rate of the latest completed run.
func (rm *ReconciliationMetrics) RecordMatchRate(ctx context.Context, rate float64) {
	rm.matchRate.Record(ctx, rate)
}

// ErrMeterNil is returned when the meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewReconciliationMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
