// Package credstore persists the credentials of the signed-in session.
// The store holds three keys and no business logic: callers decide what a
// partial record means.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/ExpenseGo/internal/domain"
	"github.com/utafrali/ExpenseGo/pkg/logger"
)

// Persisted keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

var allKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

// ErrNotFound is returned by a Backend for a missing key.
var ErrNotFound = errors.New("credstore: key not found")

// Backend is a small key-value store. SetAll writes every pair or none.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetAll(ctx context.Context, kv map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

// Store reads and writes the session credential record.
type Store struct {
	backend Backend
	logger  *slog.Logger
}

// New creates a Store over the given backend.
func New(backend Backend, l *slog.Logger) *Store {
	if l == nil {
		l = logger.Discard()
	}
	return &Store{backend: backend, logger: l}
}

// Save writes the tokens and the serialized user together.
func (s *Store) Save(ctx context.Context, tokens domain.TokenPair, user *domain.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	err = s.backend.SetAll(ctx, map[string][]byte{
		KeyAccessToken:  []byte(tokens.AccessToken),
		KeyRefreshToken: []byte(tokens.RefreshToken),
		KeyUser:         raw,
	})
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// SaveTokens replaces the token pair and keeps the stored user.
func (s *Store) SaveTokens(ctx context.Context, tokens domain.TokenPair) error {
	err := s.backend.SetAll(ctx, map[string][]byte{
		KeyAccessToken:  []byte(tokens.AccessToken),
		KeyRefreshToken: []byte(tokens.RefreshToken),
	})
	if err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}

// Load returns whatever subset of the record is present. Missing keys and
// an unparseable user read as absent. Backend read failures also leave the
// affected keys absent but are returned as an error, so callers can tell
// "nothing stored" from "could not read".
func (s *Store) Load(ctx context.Context) (domain.Credentials, error) {
	var creds domain.Credentials
	var errs []error

	access, err := s.get(ctx, KeyAccessToken)
	errs = append(errs, err)
	refresh, err := s.get(ctx, KeyRefreshToken)
	errs = append(errs, err)
	creds.Tokens = domain.TokenPair{AccessToken: string(access), RefreshToken: string(refresh)}

	raw, err := s.get(ctx, KeyUser)
	errs = append(errs, err)
	if len(raw) > 0 {
		var u domain.User
		if err := json.Unmarshal(raw, &u); err != nil {
			s.logger.WarnContext(ctx, "stored user record is corrupt, ignoring",
				slog.String("error", err.Error()),
			)
		} else {
			creds.User = &u
		}
	}
	return creds, errors.Join(errs...)
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.WarnContext(ctx, "credential read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

// Clear removes all three keys.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, allKeys...); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// Ping reports whether the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
