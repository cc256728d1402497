package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracer_DisabledStillInstallsPropagator(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), DefaultConfig("expensectl"))
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")
}

func TestInitTracer_Enabled(t *testing.T) {
	cfg := Config{
		ServiceName:    "expensectl",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "127.0.0.1:0",
		SampleRate:     1.0,
		Enabled:        true,
	}

	shutdown, err := InitTracer(context.Background(), cfg)
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)

	_ = shutdown(context.Background())
}

func TestNewProvider_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := NewProvider(context.Background(), DefaultConfig("expensectl"), sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "session.login")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "session.login", spans[0].Name())
}

func TestNewProvider_ZeroSampleRateDropsRootSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	cfg := DefaultConfig("expensectl")
	cfg.SampleRate = 0
	tp, err := NewProvider(context.Background(), cfg, sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "dropped")
	span.End()

	assert.Empty(t, recorder.Ended())
}

func TestPropagator_InjectsTraceparent(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := NewProvider(context.Background(), DefaultConfig("expensectl"), sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "outbound")
	defer span.End()

	h := http.Header{}
	Propagator().Inject(ctx, propagation.HeaderCarrier(h))
	assert.Contains(t, h.Get("traceparent"), span.SpanContext().TraceID().String())
}

func TestSampler(t *testing.T) {
	assert.Contains(t, Sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, Sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, Sampler(0.25).Description(), "TraceIDRatioBased")
}
