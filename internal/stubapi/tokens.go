package stubapi

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/utafrali/ExpenseGo/pkg/middleware"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

var errRevoked = middleware.ErrTokenRevoked

// tokenClaims are carried by both token types. Gen ties a token to the
// generation that was current when it was issued.
type tokenClaims struct {
	Type string `json:"type"`
	Gen  int    `json:"gen"`
	jwt.RegisteredClaims
}

// tokenIssuer signs and checks HS256 tokens. Bumping a generation
// invalidates every token of that type issued before.
type tokenIssuer struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	now           func() time.Time

	mu         sync.Mutex
	accessGen  int
	refreshGen int
	revoked    map[string]struct{}
}

func newTokenIssuer(secret string, accessExpiry, refreshExpiry time.Duration, now func() time.Time) *tokenIssuer {
	return &tokenIssuer{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		now:           now,
		revoked:       make(map[string]struct{}),
	}
}

func (t *tokenIssuer) issue(userID int64, typ string) (string, error) {
	t.mu.Lock()
	gen, expiry := t.accessGen, t.accessExpiry
	if typ == typeRefresh {
		gen, expiry = t.refreshGen, t.refreshExpiry
	}
	t.mu.Unlock()

	now := t.now().UTC()
	claims := &tokenClaims{
		Type: typ,
		Gen:  gen,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			Issuer:    "expense-stub",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

func (t *tokenIssuer) pair(userID int64) (access, refresh string, err error) {
	if access, err = t.issue(userID, typeAccess); err != nil {
		return "", "", err
	}
	if refresh, err = t.issue(userID, typeRefresh); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// validate parses a token of the wanted type. Expired and superseded
// tokens report middleware.ErrTokenExpired.
func (t *tokenIssuer) validate(token, want string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, middleware.ErrTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.Type != want {
		return nil, fmt.Errorf("expected %s token, got %q", want, claims.Type)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.revoked[claims.ID]; ok {
		return nil, errRevoked
	}
	current := t.accessGen
	if want == typeRefresh {
		current = t.refreshGen
	}
	if claims.Gen < current {
		return nil, middleware.ErrTokenExpired
	}
	return claims, nil
}

func (t *tokenIssuer) revoke(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.revoked[id] = struct{}{}
}

func (t *tokenIssuer) expireAccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accessGen++
}

func (t *tokenIssuer) revokeRefresh() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refreshGen++
}

// validator adapts the issuer to the auth middleware.
func (t *tokenIssuer) validator(want string) middleware.TokenValidator {
	return func(token string) (*middleware.Claims, error) {
		claims, err := t.validate(token, want)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{UserID: claims.Subject, Type: claims.Type, ID: claims.ID}, nil
	}
}
