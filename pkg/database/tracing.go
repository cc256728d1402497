package database

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/utafrali/ExpenseGo/pkg/database"

// TracingHook is a go-redis hook that starts a client span per command and
// logs commands slower than a threshold. Statements carry the command name
// and key only; values are never recorded.
type TracingHook struct {
	addr      string
	threshold time.Duration
	logger    *slog.Logger
}

// NewTracingHook creates a hook for the server at addr. A zero threshold or
// nil logger disables slow command logging.
func NewTracingHook(addr string, threshold time.Duration, logger *slog.Logger) *TracingHook {
	return &TracingHook{addr: addr, threshold: threshold, logger: logger}
}

func (h *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		ctx, end := h.trace(ctx, "dial", addr)
		conn, err := next(ctx, network, addr)
		end(err)
		return conn, err
	}
}

func (h *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, end := h.trace(ctx, cmd.Name(), statement(cmd))
		err := next(ctx, cmd)
		end(err)
		return err
	}
}

func (h *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		parts := make([]string, len(cmds))
		for i, cmd := range cmds {
			parts[i] = statement(cmd)
		}
		ctx, end := h.trace(ctx, "pipeline", strings.Join(parts, "; "))
		err := next(ctx, cmds)
		end(err)
		return err
	}
}

// trace starts a span for a Redis operation. The returned function must be
// called when the operation completes.
func (h *TracingHook) trace(ctx context.Context, operation, stmt string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "redis."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", stmt),
			attribute.String("server.address", h.addr),
		),
	)

	return ctx, func(err error) {
		// A missing key is an answer, not a failure.
		if err != nil && !errors.Is(err, redis.Nil) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if h.threshold <= 0 || h.logger == nil {
			return
		}
		if elapsed := time.Since(start); elapsed >= h.threshold {
			attrs := []any{
				slog.String("operation", operation),
				slog.String("statement", stmt),
				slog.Duration("duration", elapsed),
			}
			if err != nil && !errors.Is(err, redis.Nil) {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			h.logger.WarnContext(ctx, "slow redis command", attrs...)
		}
	}
}

// statement renders a command as its name and key.
func statement(cmd redis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return cmd.Name()
	}
	if key, ok := args[1].(string); ok {
		return cmd.Name() + " " + key
	}
	return cmd.Name()
}
