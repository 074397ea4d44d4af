package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/finrec/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func newTestMetrics(t *testing.T) (*telemetry.ReconciliationMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	rm, err := telemetry.NewReconciliationMetrics(telemetry.ReconciliationMetricsConfig{
		Meter: provider.Meter("test"),
	})
	require.NoError(t, err)
	return rm, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestNewReconciliationMetricsRequiresMeter(t *testing.T) {
	_, err := telemetry.NewReconciliationMetrics(telemetry.ReconciliationMetricsConfig{})
	require.Error(t, err)
}

func TestRecordRunFinished(t *testing.T) {
	rm, reader := newTestMetrics(t)
	ctx := context.Background()

	rm.RecordRunFinished(ctx, "COMPLETED", 3*time.Second)
	rm.RecordRunFinished(ctx, "FAILED", time.Second)

	data := collect(t, reader)

	runs, ok := findMetric(data, "finrec_reconciliation_runs_total")
	require.True(t, ok)
	sum, ok := runs.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, sum.DataPoints, 2)

	_, ok = findMetric(data, "finrec_reconciliation_run_duration_seconds")
	assert.True(t, ok)
}

func TestRecordPaymentsProcessed(t *testing.T) {
	rm, reader := newTestMetrics(t)
	ctx := context.Background()

	rm.RecordPaymentsProcessed(ctx, "MATCHED", 9)
	rm.RecordPaymentsProcessed(ctx, "UNMATCHED", 0) // ignored

	data := collect(t, reader)
	m, ok := findMetric(data, "finrec_payments_processed_total")
	require.True(t, ok)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(9), sum.DataPoints[0].Value)
}

func TestRecordIssueAndReview(t *testing.T) {
	rm, reader := newTestMetrics(t)
	ctx := context.Background()

	rm.RecordIssue(ctx, "DUPLICATE_PAYMENT", "HIGH")
	rm.RecordReviewDecision(ctx, "CONFIRMED")
	rm.RecordMatchRate(ctx, 87.5)

	data := collect(t, reader)

	issues, ok := findMetric(data, "finrec_reconciliation_issues_total")
	require.True(t, ok)
	issueSum, ok := issues.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, issueSum.DataPoints, 1)
	assert.Equal(t, int64(1), issueSum.DataPoints[0].Value)

	_, ok = findMetric(data, "finrec_review_decisions_total")
	assert.True(t, ok)

	rate, ok := findMetric(data, "finrec_match_rate_percent")
	require.True(t, ok)
	gauge, ok := rate.Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, 87.5, gauge.DataPoints[0].Value)
}
