// Package guard gates HTTP routes on the session state.
package guard

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/utafrali/ExpenseGo/internal/domain"
	"github.com/utafrali/ExpenseGo/internal/session"
	"github.com/utafrali/ExpenseGo/pkg/httputil"
)

type contextKey struct{}

// Source exposes the session state. *session.Manager satisfies it.
type Source interface {
	Snapshot() session.Snapshot
}

// Options configures the guards.
type Options struct {
	// LoginPath receives unauthenticated visitors. Default "/login".
	LoginPath string
	// HomePath receives signed-in visitors of public-only pages.
	// Default "/dashboard".
	HomePath string
}

func (o Options) withDefaults() Options {
	if o.LoginPath == "" {
		o.LoginPath = "/login"
	}
	if o.HomePath == "" {
		o.HomePath = "/dashboard"
	}
	return o
}

// RequireAuth serves next only for a signed-in session. While a sign-in is
// in flight it answers 503 with Retry-After. Otherwise browsers are
// redirected to the login page with the original location in "from", and
// JSON clients get 401.
func RequireAuth(src Source, opts Options) func(http.Handler) http.Handler {
	opts = opts.withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := src.Snapshot()
			switch {
			case snap.Loading():
				w.Header().Set("Retry-After", "1")
				httputil.WriteMessage(w, http.StatusServiceUnavailable, "Checking authentication")
			case !snap.IsAuthenticated():
				if wantsJSON(r) {
					httputil.WriteMessage(w, http.StatusUnauthorized, "Authorization token required")
					return
				}
				target := opts.LoginPath + "?from=" + url.QueryEscape(r.URL.RequestURI())
				http.Redirect(w, r, target, http.StatusFound)
			default:
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), snap.User)))
			}
		})
	}
}

// RedirectIfAuthenticated keeps signed-in sessions off pages such as login
// and register, sending them to "from" when it is a local path.
func RedirectIfAuthenticated(src Source, opts Options) func(http.Handler) http.Handler {
	opts = opts.withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !src.Snapshot().IsAuthenticated() {
				next.ServeHTTP(w, r)
				return
			}
			target := opts.HomePath
			if from := r.URL.Query().Get("from"); isLocalPath(from) {
				target = from
			}
			http.Redirect(w, r, target, http.StatusFound)
		})
	}
}

// WithUser stores the signed-in user in ctx.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFromContext returns the user stored by RequireAuth.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(contextKey{}).(*domain.User)
	return u, ok && u != nil
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// isLocalPath rejects absolute and protocol-relative URLs.
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}
