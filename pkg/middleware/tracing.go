package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys for the credential side of a request.
const (
	attrBearer        = attribute.Key("expense.auth.bearer")
	attrCorrelationID = attribute.Key("expense.correlation_id")
)

// Tracing opens a server span per request and continues the client's trace,
// so a CLI call, its refresh, and the retried call land in one trace. A 401
// adds an "auth.rejected" event, which is what the client reacts to.
func Tracing(component string) func(http.Handler) http.Handler {
	tracer := otel.Tracer("github.com/utafrali/ExpenseGo/" + component)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			propagator := otel.GetTextMapPropagator()
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			_, bearer := BearerToken(r)
			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.URLScheme(scheme(r)),
					semconv.UserAgentOriginal(r.UserAgent()),
					attrBearer.Bool(bearer),
				),
			)
			defer span.End()

			if id := r.Header.Get(CorrelationHeader); id != "" {
				span.SetAttributes(attrCorrelationID.String(id))
			}
			propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(ctx))

			// The route pattern is known only once chi has matched.
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if pattern := rc.RoutePattern(); pattern != "" {
					span.SetName(r.Method + " " + pattern)
					span.SetAttributes(semconv.HTTPRoute(pattern))
				}
			}
			span.SetAttributes(semconv.HTTPResponseStatusCode(sw.status))

			switch {
			case sw.status == http.StatusUnauthorized:
				span.AddEvent("auth.rejected", trace.WithAttributes(attrBearer.Bool(bearer)))
			case sw.status >= http.StatusInternalServerError:
				span.SetStatus(codes.Error, http.StatusText(sw.status))
			}
		})
	}
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}
