// Package session holds the authentication state machine. A Manager is the
// only writer of the credential store and the source of truth for whether
// the process is signed in.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/ExpenseGo/internal/domain"
	apperrors "github.com/utafrali/ExpenseGo/pkg/errors"
	"github.com/utafrali/ExpenseGo/pkg/logger"
)

// API is the subset of the auth endpoints the Manager drives.
type API interface {
	Login(ctx context.Context, in domain.LoginInput) (domain.Credentials, error)
	Register(ctx context.Context, in domain.RegisterInput) (domain.Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
	Me(ctx context.Context) (*domain.User, error)
}

// Store persists credentials. *credstore.Store satisfies it.
type Store interface {
	Save(ctx context.Context, tokens domain.TokenPair, user *domain.User) error
	SaveTokens(ctx context.Context, tokens domain.TokenPair) error
	Load(ctx context.Context) (domain.Credentials, error)
	Clear(ctx context.Context) error
}

// Options configures a Manager.
type Options struct {
	Logger *slog.Logger
	// VerifyOnRestore checks restored credentials against /auth/me.
	// Otherwise a restored token is trusted until a request rejects it.
	VerifyOnRestore bool
}

// Manager is the session state machine. It is safe for concurrent use.
type Manager struct {
	store  Store
	api    API
	logger *slog.Logger
	tracer trace.Tracer
	verify bool

	mu     sync.Mutex
	status domain.Status
	user   *domain.User
	tokens domain.TokenPair
	errMsg string
	fields map[string]string
	// epoch changes whenever a session starts or ends. Work that began
	// under an older epoch must not write its result.
	epoch uint64

	subMu  sync.Mutex
	subs   map[int]func(Snapshot)
	nextID int
}

// NewManager creates a Manager in the Anonymous state. Call Restore to load
// persisted credentials.
func NewManager(store Store, api API, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return &Manager{
		store:  store,
		api:    api,
		logger: opts.Logger,
		tracer: otel.Tracer("github.com/utafrali/ExpenseGo/internal/session"),
		verify: opts.VerifyOnRestore,
		status: domain.StatusAnonymous,
		subs:   make(map[int]func(Snapshot)),
	}
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	s := Snapshot{Status: m.status, Error: m.errMsg}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	if len(m.fields) > 0 {
		s.Fields = make(map[string]string, len(m.fields))
		for k, v := range m.fields {
			s.Fields[k] = v
		}
	}
	return s
}

// AccessToken returns the bearer token of a signed-in session, or "".
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != domain.StatusAuthenticated {
		return ""
	}
	return m.tokens.AccessToken
}

// Subscribe registers fn to receive a Snapshot after every transition.
// Callbacks run outside the Manager's lock and may call back into it.
func (m *Manager) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) notify(s Snapshot) {
	m.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// transitionLocked moves to a new status and returns the snapshot to
// publish once the lock is released.
func (m *Manager) transitionLocked(ctx context.Context, op string, to domain.Status) Snapshot {
	from := m.status
	m.status = to
	if to != domain.StatusFailed {
		m.errMsg = ""
		m.fields = nil
	}
	if to != domain.StatusAuthenticated {
		m.user = nil
		m.tokens = domain.TokenPair{}
	}
	m.logger.InfoContext(ctx, "session transition",
		slog.String("op", op),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	return m.snapshotLocked()
}

// failLocked enters Failed with the result's message and fields.
func (m *Manager) failLocked(ctx context.Context, op string, r Result) Snapshot {
	m.errMsg = r.Message
	m.fields = r.Fields
	return m.transitionLocked(ctx, op, domain.StatusFailed)
}

// endLocked discards the session and purges the store.
func (m *Manager) endLocked(ctx context.Context, op string) Snapshot {
	m.epoch++
	if err := m.store.Clear(ctx); err != nil {
		m.logger.WarnContext(ctx, "clear credentials failed", slog.String("error", err.Error()))
	}
	return m.transitionLocked(ctx, op, domain.StatusAnonymous)
}

// Restore loads persisted credentials without contacting the server unless
// VerifyOnRestore is set. Partial records are cleared; a record that could
// not be read is left in place. Restore always starts a new epoch, so work
// in flight for an earlier session is discarded.
func (m *Manager) Restore(ctx context.Context) Snapshot {
	ctx, span := m.tracer.Start(ctx, "session.Restore")
	defer span.End()

	creds, loadErr := m.store.Load(ctx)

	m.mu.Lock()
	m.epoch++
	var snap Snapshot
	switch {
	case creds.Complete():
		m.tokens = creds.Tokens
		m.user = creds.User
		snap = m.transitionLocked(ctx, "restore", domain.StatusAuthenticated)
	case loadErr != nil:
		m.logger.WarnContext(ctx, "credentials unreadable, starting signed out",
			slog.String("error", loadErr.Error()),
		)
		span.RecordError(loadErr)
		snap = m.transitionLocked(ctx, "restore", domain.StatusAnonymous)
	case creds.Tokens.AccessToken != "" || creds.Tokens.RefreshToken != "" || creds.User != nil:
		m.logger.WarnContext(ctx, "discarding partial credentials",
			slog.Bool("access_token", creds.Tokens.AccessToken != ""),
			slog.Bool("refresh_token", creds.Tokens.RefreshToken != ""),
			slog.Bool("user", creds.User != nil),
		)
		snap = m.endLocked(ctx, "restore")
	default:
		snap = m.transitionLocked(ctx, "restore", domain.StatusAnonymous)
	}
	m.mu.Unlock()
	m.notify(snap)
	span.SetAttributes(attribute.String("session.status", snap.Status.String()))

	if m.verify && snap.IsAuthenticated() {
		m.Verify(ctx)
		return m.Snapshot()
	}
	return snap
}

// Login signs in with email and password.
func (m *Manager) Login(ctx context.Context, in domain.LoginInput) Result {
	return m.authenticate(ctx, "login", in, MsgLoginFailed, func(ctx context.Context) (domain.Credentials, error) {
		return m.api.Login(ctx, in)
	})
}

// Register creates an account and signs it in.
func (m *Manager) Register(ctx context.Context, in domain.RegisterInput) Result {
	return m.authenticate(ctx, "register", in, MsgRegisterFailed, func(ctx context.Context) (domain.Credentials, error) {
		return m.api.Register(ctx, in)
	})
}

func (m *Manager) authenticate(ctx context.Context, op string, in any, fallback string,
	call func(context.Context) (domain.Credentials, error)) Result {
	ctx, span := m.tracer.Start(ctx, "session."+op)
	defer span.End()

	m.mu.Lock()
	switch m.status {
	case domain.StatusAuthenticating:
		m.mu.Unlock()
		return stateResult(MsgInProgress)
	case domain.StatusAuthenticated:
		m.mu.Unlock()
		return stateResult(MsgSignedIn)
	}

	if r, valid := validate(in); !valid {
		snap := m.failLocked(ctx, op, r)
		m.mu.Unlock()
		m.notify(snap)
		return r
	}

	m.epoch++
	epoch := m.epoch
	snap := m.transitionLocked(ctx, op, domain.StatusAuthenticating)
	m.mu.Unlock()
	m.notify(snap)

	creds, err := call(ctx)

	m.mu.Lock()
	if m.epoch != epoch {
		// Logged out while the call was in flight.
		m.mu.Unlock()
		return endedResult()
	}

	var res Result
	if err != nil {
		res = failure(err, fallback)
		span.SetAttributes(attribute.String("session.failure", string(res.Kind)))
		m.logger.InfoContext(ctx, op+" failed",
			slog.String("kind", string(res.Kind)),
			slog.String("error", err.Error()),
		)
		snap = m.failLocked(ctx, op, res)
	} else {
		if err := m.store.Save(ctx, creds.Tokens, creds.User); err != nil {
			m.logger.WarnContext(ctx, "persist credentials failed", slog.String("error", err.Error()))
		}
		m.tokens = creds.Tokens
		m.user = creds.User
		res = ok()
		snap = m.transitionLocked(logger.WithUserID(ctx, userID(creds.User)), op, domain.StatusAuthenticated)
	}
	m.mu.Unlock()
	m.notify(snap)
	return res
}

// Logout ends the session locally, then tells the server on a best-effort
// basis. It always succeeds and is idempotent.
func (m *Manager) Logout(ctx context.Context) Result {
	ctx, span := m.tracer.Start(ctx, "session.Logout")
	defer span.End()

	m.mu.Lock()
	token := m.tokens.AccessToken
	wasAnonymous := m.status == domain.StatusAnonymous
	snap := m.endLocked(ctx, "logout")
	m.mu.Unlock()

	if !wasAnonymous {
		m.notify(snap)
	}
	if token != "" {
		if err := m.api.Logout(ctx, token); err != nil {
			m.logger.DebugContext(ctx, "server logout failed", slog.String("error", err.Error()))
		}
	}
	return ok()
}

// Refresh exchanges the refresh token for a new access token. stale is the
// token the server rejected; if it was already replaced, the current token
// is returned without a round trip.
//
// A network failure leaves the session as it was. Any response from the
// server other than success ends the session. A refresh that finishes
// after the session ended or was replaced is discarded.
func (m *Manager) Refresh(ctx context.Context, stale string) (string, error) {
	ctx, span := m.tracer.Start(ctx, "session.Refresh")
	defer span.End()

	m.mu.Lock()
	if m.status != domain.StatusAuthenticated || m.tokens.RefreshToken == "" {
		m.mu.Unlock()
		return "", apperrors.SessionEnded()
	}
	if current := m.tokens.AccessToken; current != stale {
		m.mu.Unlock()
		return current, nil
	}
	epoch := m.epoch
	refreshToken := m.tokens.RefreshToken
	m.mu.Unlock()

	pair, err := m.api.Refresh(ctx, refreshToken)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		span.SetAttributes(attribute.Bool("session.discarded", true))
		return "", apperrors.SessionEnded()
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrNetwork) {
			m.mu.Unlock()
			return "", err
		}
		m.logger.WarnContext(ctx, "refresh rejected, ending session",
			slog.String("error", err.Error()),
			logger.Token("refresh_token", refreshToken),
		)
		snap := m.endLocked(ctx, "refresh")
		m.mu.Unlock()
		m.notify(snap)
		return "", err
	}

	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	if err := m.store.SaveTokens(ctx, pair); err != nil {
		m.logger.WarnContext(ctx, "persist refreshed tokens failed", slog.String("error", err.Error()))
	}
	m.tokens = pair
	m.logger.DebugContext(ctx, "access token refreshed",
		logger.Token("access_token", pair.AccessToken),
		slog.Bool("rotated", pair.RefreshToken != refreshToken),
	)
	m.mu.Unlock()
	return pair.AccessToken, nil
}

// Verify checks the session against /auth/me and updates the cached
// profile. A 401 that survives refresh ends the session; network and other
// failures leave it unchanged.
func (m *Manager) Verify(ctx context.Context) Result {
	ctx, span := m.tracer.Start(ctx, "session.Verify")
	defer span.End()

	m.mu.Lock()
	if m.status != domain.StatusAuthenticated {
		m.mu.Unlock()
		return stateResult(MsgNotSignedIn)
	}
	epoch := m.epoch
	m.mu.Unlock()

	user, err := m.api.Me(ctx)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return endedResult()
	}
	if err != nil {
		res := failure(err, MsgVerifyFailed)
		if !errors.Is(err, apperrors.ErrUnauthorized) {
			m.mu.Unlock()
			return res
		}
		snap := m.endLocked(ctx, "verify")
		m.mu.Unlock()
		m.notify(snap)
		return res
	}

	m.user = user
	if err := m.store.Save(ctx, m.tokens, user); err != nil {
		m.logger.WarnContext(ctx, "persist profile failed", slog.String("error", err.Error()))
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)
	return ok()
}

func userID(u *domain.User) string {
	if u == nil {
		return ""
	}
	return strconv.FormatInt(u.ID, 10)
}
