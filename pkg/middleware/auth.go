package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/utafrali/ExpenseGo/pkg/httputil"
)

type contextKeyType string

const (
	userIDKey contextKeyType = "user_id"
	tokenKey  contextKeyType = "token"
	claimsKey contextKeyType = "claims"
)

// ErrTokenExpired is returned by a TokenValidator for a well-formed token
// whose lifetime has elapsed.
var ErrTokenExpired = errors.New("token expired")

// ErrTokenRevoked is returned by a TokenValidator for a token that was
// explicitly invalidated, for example by logout.
var ErrTokenRevoked = errors.New("token revoked")

// Claims represents the token claims extracted by the auth middleware.
type Claims struct {
	UserID string
	Type   string
	// ID is the token's unique identifier, when it has one.
	ID string
}

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator func(token string) (*Claims, error)

// Auth validates the bearer token and injects the user id into context.
// Error bodies follow the API's {"error": "..."} shape.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				httputil.WriteMessage(w, http.StatusUnauthorized, "Authorization token required")
				return
			}

			claims, err := validate(token)
			if errors.Is(err, ErrTokenExpired) {
				httputil.WriteMessage(w, http.StatusUnauthorized, "Token has expired")
				return
			}
			if errors.Is(err, ErrTokenRevoked) {
				httputil.WriteMessage(w, http.StatusUnauthorized, "Token has been revoked")
				return
			}
			if err != nil {
				httputil.WriteMessage(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			ctx = context.WithValue(ctx, tokenKey, token)
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// TokenFromContext returns the bearer token the request was authorized with.
func TokenFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(tokenKey).(string); ok {
		return t
	}
	return ""
}

// ClaimsFromContext returns the claims of the authorized token.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}
