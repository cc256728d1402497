package gateway

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expiresWithin reports whether token is a JWT whose exp claim falls
// within window of now. The signature is not checked: the token stays
// opaque to the client and exp only schedules a refresh. Anything that is
// not a JWT with exp reports false.
func expiresWithin(token string, window time.Duration, now time.Time) bool {
	if window <= 0 || token == "" {
		return false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Sub(now) <= window
}
