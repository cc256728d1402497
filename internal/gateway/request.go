package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	apperrors "github.com/utafrali/ExpenseGo/pkg/errors"
	"github.com/utafrali/ExpenseGo/pkg/httpclient"
)

// Request describes one API call. The zero value of retried marks a first
// attempt; the gateway sets it on the copy it resends after a refresh.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON-encoded when non-nil.
	Body   any
	Header http.Header

	// SkipAuth sends the request without the session's bearer token and
	// disables refresh-on-401. Used by the auth endpoints themselves.
	SkipAuth bool
	// Bearer, when set, is sent instead of the session token.
	Bearer string

	retried bool
}

// Retried reports whether this request is the single post-refresh resend.
func (r *Request) Retried() bool { return r.retried }

func (r *Request) retry() *Request {
	cp := *r
	cp.retried = true
	return &cp
}

// Response is a fully buffered API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err returns nil for 2xx responses, otherwise an AppError carrying the
// server's message.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return httpclient.ErrorFromBody(r.StatusCode, r.Body)
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return apperrors.Internal(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
