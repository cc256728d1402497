package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/ExpenseGo/pkg/logger"
)

// CorrelationHeader carries the request correlation id in both directions.
// The expense client sets it on every call, so client and server logs join
// on it.
const CorrelationHeader = "X-Correlation-ID"

// RequestLogging tags each request with a correlation id and logs its
// outcome: server errors at error, rejected credentials and other client
// errors at warn. A bearer token is logged only as a fingerprint, which is
// enough to tell an access token from the refreshed one that replaced it.
func RequestLogging(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			correlationID := r.Header.Get(CorrelationHeader)
			if correlationID == "" {
				correlationID = uuid.New().String()
			}
			ctx := logger.WithCorrelationID(r.Context(), correlationID)
			w.Header().Set(CorrelationHeader, correlationID)

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(ctx))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", sw.bytes),
				slog.String("correlation_id", correlationID),
			}
			if token, ok := BearerToken(r); ok {
				attrs = append(attrs, logger.Token("bearer", token))
			}
			if sw.status == http.StatusUnauthorized {
				attrs = append(attrs, slog.Bool("auth_rejected", true))
			}
			l.LogAttrs(ctx, levelFor(sw.status), "http request", attrs...)
		})
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
