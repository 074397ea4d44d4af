package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/finrec/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTestTracer installs an in-memory span recorder as the global
// tracer provider. The cleanup function restores the previous provider.
func setupTestTracer(t *testing.T) (*tracetest.SpanRecorder, func()) {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sr),
	)

	originalProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		_ = tp.Shutdown(context.Background())
	}
	return sr, cleanup
}

func TestStartSpan(t *testing.T) {
	sr, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := telemetry.StartSpan(context.Background(), "reconciliation.test")
	require.NotNil(t, span)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "reconciliation.test", spans[0].Name())
	assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind())
}

func TestStartSpanWithOptions(t *testing.T) {
	sr, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := telemetry.StartSpan(context.Background(), "reconciliation.test",
		telemetry.WithAttribute(telemetry.SpanAttrGateway, "MPESA"),
		telemetry.WithSpanKind(trace.SpanKindClient),
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())

	attrs := spans[0].Attributes()
	require.Len(t, attrs, 1)
	assert.Equal(t, "gateway", string(attrs[0].Key))
	assert.Equal(t, "MPESA", attrs[0].Value.AsString())
}

func TestStartServiceSpan(t *testing.T) {
	sr, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := telemetry.StartServiceSpan(context.Background(), "reconciliation", "start_run")
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "reconciliation.start_run", spans[0].Name())
}

func TestSetAttributes(t *testing.T) {
	sr, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := telemetry.StartSpan(context.Background(), "reconciliation.test")
	telemetry.SetAttributes(span,
		telemetry.SpanAttrRunStatus, "COMPLETED",
		"payment_count", 42,
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)

	attrs := spans[0].Attributes()
	require.Len(t, attrs, 2)
	assert.Equal(t, "run_status", string(attrs[0].Key))
	assert.Equal(t, "COMPLETED", attrs[0].Value.AsString())
	assert.Equal(t, int64(42), attrs[1].Value.AsInt64())
}

func TestRecordError(t *testing.T) {
	sr, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := telemetry.StartSpan(context.Background(), "reconciliation.test")
	telemetry.RecordError(span, errors.New("invoice feed unreadable"))
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "invoice feed unreadable", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
}

func TestRecordErrorNilSafe(t *testing.T) {
	// Neither a nil span nor a nil error should panic.
	telemetry.RecordError(nil, errors.New("boom"))

	_, cleanup := setupTestTracer(t)
	defer cleanup()
	_, span := telemetry.StartSpan(context.Background(), "reconciliation.test")
	telemetry.RecordError(span, nil)
	span.End()
}

func TestGetTraceAndSpanID(t *testing.T) {
	_, cleanup := setupTestTracer(t)
	defer cleanup()

	assert.Empty(t, telemetry.GetTraceID(context.Background()))
	assert.Empty(t, telemetry.GetSpanID(context.Background()))

	ctx, span := telemetry.StartSpan(context.Background(), "reconciliation.test")
	defer span.End()

	assert.NotEmpty(t, telemetry.GetTraceID(ctx))
	assert.NotEmpty(t, telemetry.GetSpanID(ctx))
}
