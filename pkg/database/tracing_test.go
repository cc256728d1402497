package database

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/utafrali/ExpenseGo/pkg/logger"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		tp.Shutdown(context.Background()) //nolint:errcheck
		otel.SetTracerProvider(prev)
	})

	return exporter
}

func spanNamed(spans tracetest.SpanStubs, name string) (tracetest.SpanStub, bool) {
	for _, s := range spans {
		if s.Name == name {
			return s, true
		}
	}
	return tracetest.SpanStub{}, false
}

func attrs(s tracetest.SpanStub) map[string]string {
	out := make(map[string]string)
	for _, a := range s.Attributes {
		out[string(a.Key)] = a.Value.Emit()
	}
	return out
}

func TestTracingHook_CommandSpans(t *testing.T) {
	exporter := setupTestTracer(t)
	cfg, _ := miniredisConfig(t)
	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "session:access_token", "secret-token", 0).Err())

	span, ok := spanNamed(exporter.GetSpans(), "redis.set")
	require.True(t, ok, "expected a redis.set span")
	a := attrs(span)
	assert.Equal(t, "redis", a["db.system"])
	assert.Equal(t, "set session:access_token", a["db.statement"])
	assert.NotContains(t, a["db.statement"], "secret-token")
	assert.Equal(t, cfg.Addr(), a["server.address"])
	assert.Equal(t, codes.Unset, span.Status.Code)
}

func TestTracingHook_MissingKeyIsNotAnError(t *testing.T) {
	exporter := setupTestTracer(t)
	cfg, _ := miniredisConfig(t)
	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	err = client.Get(context.Background(), "session:user").Err()
	require.ErrorIs(t, err, redis.Nil)

	span, ok := spanNamed(exporter.GetSpans(), "redis.get")
	require.True(t, ok)
	assert.Equal(t, codes.Unset, span.Status.Code)
}

func TestTracingHook_ErrorSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	cfg, mr := miniredisConfig(t)
	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	mr.SetError("LOADING")
	require.Error(t, client.Get(context.Background(), "k").Err())

	span, ok := spanNamed(exporter.GetSpans(), "redis.get")
	require.True(t, ok)
	assert.Equal(t, codes.Error, span.Status.Code)
}

func TestTracingHook_Pipeline(t *testing.T) {
	exporter := setupTestTracer(t)
	cfg, _ := miniredisConfig(t)
	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, "a", "1", 0)
		pipe.Set(ctx, "b", "2", 0)
		return nil
	})
	require.NoError(t, err)

	span, ok := spanNamed(exporter.GetSpans(), "redis.pipeline")
	require.True(t, ok)
	stmt := attrs(span)["db.statement"]
	assert.Contains(t, stmt, "set a")
	assert.Contains(t, stmt, "set b")
}

func TestTracingHook_SlowCommandLogging(t *testing.T) {
	setupTestTracer(t)
	var buf bytes.Buffer
	cfg, _ := miniredisConfig(t)
	cfg.SlowThreshold = time.Nanosecond
	cfg.Logger = logger.NewWithWriter("test", "warn", &buf)

	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	assert.Contains(t, buf.String(), "slow redis command")
	assert.Contains(t, buf.String(), `"statement":"set k"`)
}

func TestTracingHook_SlowLoggingDisabled(t *testing.T) {
	var buf bytes.Buffer
	h := NewTracingHook("localhost:6379", 0, logger.NewWithWriter("test", "warn", &buf))

	_, end := h.trace(context.Background(), "get", "get k")
	end(nil)
	assert.Empty(t, buf.String())
}
