package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/utafrali/ExpenseGo/pkg/httputil"
	"github.com/utafrali/ExpenseGo/pkg/logger"
)

// Recovery turns a handler panic into the API's 500 error body. When the
// handler already started its response, the connection is left as is.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				l.ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("correlation_id", logger.CorrelationIDFromContext(r.Context())),
				)
				if !sw.wroteHeader {
					httputil.WriteMessage(sw, http.StatusInternalServerError, "Internal server error")
				}
			}()

			next.ServeHTTP(sw, r)
		})
	}
}
