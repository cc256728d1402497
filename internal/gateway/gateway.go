// Package gateway is the single path every API call takes. It attaches the
// session's bearer token and, when the server answers 401, refreshes the
// token once and resends the request once.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	apperrors "github.com/utafrali/ExpenseGo/pkg/errors"
	"github.com/utafrali/ExpenseGo/pkg/logger"
)

const maxBodyBytes = 4 << 20

// Doer sends an HTTP request. *httpclient.CircuitBreakerClient and
// *httpclient.Client satisfy it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Session is the gateway's view of the session state machine.
type Session interface {
	// AccessToken returns the current access token, or "" when signed out.
	AccessToken() string
	// Refresh exchanges the refresh token for a new access token. stale is
	// the access token the server rejected.
	Refresh(ctx context.Context, stale string) (string, error)
}

// Options configures a Gateway.
type Options struct {
	Logger  *slog.Logger
	Metrics *Metrics
	// Limiter throttles dispatches. Nil disables throttling.
	Limiter *rate.Limiter
	// RefreshTimeout bounds a shared refresh independently of the callers
	// waiting on it.
	RefreshTimeout time.Duration
	// ProactiveWindow refreshes before dispatch when the access token
	// expires within the window. Zero disables it.
	ProactiveWindow time.Duration
	// Now is the clock used for proactive refresh.
	Now func() time.Time
}

// Gateway dispatches API requests with bearer auth and refresh-and-retry.
type Gateway struct {
	base   *url.URL
	doer   Doer
	opts   Options
	tracer trace.Tracer
	flight singleflight.Group

	mu      sync.RWMutex
	session Session
}

// New creates a Gateway for the API rooted at baseURL.
func New(baseURL string, doer Doer, opts Options) (*Gateway, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api url %q", baseURL)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gateway{
		base:   base,
		doer:   doer,
		opts:   opts,
		tracer: otel.Tracer("github.com/utafrali/ExpenseGo/internal/gateway"),
	}, nil
}

// Attach binds the session whose tokens the gateway uses. The session is
// built on top of the gateway, so it is attached after construction.
func (g *Gateway) Attach(s Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = s
}

func (g *Gateway) currentSession() Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.session
}

// Do sends req and returns the buffered response. Any HTTP response,
// including a final 401, is returned with a nil error; errors mean no
// response was received or the request could not be built.
func (g *Gateway) Do(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := g.tracer.Start(ctx, "gateway "+req.Method+" "+req.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("url.path", req.Path),
		),
	)
	defer span.End()

	sess := g.currentSession()
	token := req.Bearer
	refreshed := false
	if token == "" && !req.SkipAuth && sess != nil {
		token, refreshed = g.proactive(ctx, sess, sess.AccessToken())
	}

	resp, err := g.dispatch(ctx, req, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, err
	}

	// A proactive refresh already spent this request's one refresh attempt.
	if resp.StatusCode != http.StatusUnauthorized || req.SkipAuth || req.Bearer != "" ||
		sess == nil || token == "" || req.retried || refreshed {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		return resp, nil
	}

	fresh, err := g.refresh(ctx, sess, token)
	if err != nil {
		span.SetAttributes(attribute.Bool("auth.refresh_failed", true))
		if errors.Is(err, apperrors.ErrNetwork) {
			span.SetStatus(codes.Error, "refresh transport")
			return nil, err
		}
		// The session is over; surface the original 401.
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		return resp, nil
	}

	g.opts.Metrics.observeRetry()
	span.SetAttributes(attribute.Bool("auth.retried", true))
	retry := req.retry()
	resp, err = g.dispatch(ctx, retry, fresh)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

// DoJSON sends req and decodes a 2xx body into out (which may be nil).
// Non-2xx responses become AppErrors carrying the server's message.
func (g *Gateway) DoJSON(ctx context.Context, req *Request, out any) error {
	resp, err := g.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// proactive refreshes ahead of dispatch when the token is about to expire.
// Failures fall back to whatever token the session now holds. attempted
// reports whether a refresh was tried, successful or not.
func (g *Gateway) proactive(ctx context.Context, sess Session, token string) (_ string, attempted bool) {
	if !expiresWithin(token, g.opts.ProactiveWindow, g.opts.Now()) {
		return token, false
	}
	fresh, err := g.refresh(ctx, sess, token)
	if err != nil {
		g.opts.Logger.DebugContext(ctx, "proactive refresh failed",
			slog.String("error", err.Error()),
		)
		return sess.AccessToken(), true
	}
	return fresh, true
}

// refresh runs at most one refresh at a time. Callers whose stale token was
// already replaced get the current token without another round trip.
func (g *Gateway) refresh(ctx context.Context, sess Session, stale string) (string, error) {
	if current := sess.AccessToken(); current != "" && current != stale {
		g.opts.Metrics.observeRefresh("superseded")
		return current, nil
	}

	ch := g.flight.DoChan("refresh", func() (any, error) {
		// Waiters share the result, so one caller's cancellation must not
		// abort it for the rest.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.RefreshTimeout)
		defer cancel()
		return sess.Refresh(rctx, stale)
	})

	select {
	case <-ctx.Done():
		return "", apperrors.Network(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			g.opts.Metrics.observeRefresh(refreshResult(res.Err))
			g.opts.Logger.WarnContext(ctx, "token refresh failed",
				slog.String("error", res.Err.Error()),
				logger.Token("stale_token", stale),
			)
			return "", res.Err
		}
		if res.Shared {
			g.opts.Metrics.observeRefresh("shared")
		} else {
			g.opts.Metrics.observeRefresh("success")
		}
		return res.Val.(string), nil
	}
}

func refreshResult(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrNetwork):
		return "network"
	case errors.Is(err, apperrors.ErrSessionEnded):
		return "ended"
	default:
		return "rejected"
	}
}

func (g *Gateway) dispatch(ctx context.Context, req *Request, token string) (*Response, error) {
	if g.opts.Limiter != nil {
		if err := g.opts.Limiter.Wait(ctx); err != nil {
			return nil, apperrors.Network(fmt.Errorf("rate limit: %w", err))
		}
	}

	httpReq, err := g.build(ctx, req, token)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := g.doer.Do(ctx, httpReq)
	if err != nil {
		g.opts.Metrics.observeRequest(req.Method, 0)
		g.opts.Logger.ErrorContext(ctx, "api request failed",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.Network(err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		g.opts.Metrics.observeRequest(req.Method, 0)
		return nil, apperrors.Network(fmt.Errorf("read response: %w", err))
	}

	g.opts.Metrics.observeRequest(req.Method, httpResp.StatusCode)
	g.opts.Logger.DebugContext(ctx, "api request",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status", httpResp.StatusCode),
		slog.Bool("retried", req.retried),
		slog.Duration("duration", time.Since(start)),
		logger.Token("bearer", token),
	)

	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}, nil
}

// build creates a fresh *http.Request for every attempt, so a resend never
// reuses a consumed body.
func (g *Gateway) build(ctx context.Context, req *Request, token string) (*http.Request, error) {
	u := *g.base
	u.Path = g.base.Path + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader = http.NoBody
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, apperrors.Internal(fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("build request: %w", err))
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	correlationID := logger.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	httpReq.Header.Set("X-Correlation-ID", correlationID)

	return httpReq, nil
}
