// Package stubapi is an in-process implementation of the expense tracker
// REST API. It backs the integration tests and `stub-api` for local work.
package stubapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/ExpenseGo/pkg/health"
	"github.com/utafrali/ExpenseGo/pkg/logger"
	"github.com/utafrali/ExpenseGo/pkg/middleware"
)

// Config configures the stub.
type Config struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Logger     *slog.Logger
	Now        func() time.Time
}

// Server holds the stub's state and routes.
type Server struct {
	cfg    Config
	logger *slog.Logger
	tokens *tokenIssuer
	store  *memStore
	health *health.Handler
	router chi.Router

	callsMu sync.Mutex
	calls   map[string]int
}

// New creates a stub server with empty state.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AccessTokenExpiry <= 0 {
		cfg.AccessTokenExpiry = time.Hour
	}
	if cfg.RefreshTokenExpiry <= 0 {
		cfg.RefreshTokenExpiry = 30 * 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		tokens: newTokenIssuer(cfg.JWTSecret, cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry, cfg.Now),
		store:  newMemStore(cfg.Now),
		health: health.NewHandler(),
		calls:  make(map[string]int),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Health returns the health handler so callers can register checks.
func (s *Server) Health() *health.Handler {
	return s.health
}

// ExpireAccessTokens makes every access token issued so far answer
// "Token has expired".
func (s *Server) ExpireAccessTokens() {
	s.tokens.expireAccess()
}

// RevokeRefreshTokens makes every refresh token issued so far unusable.
func (s *Server) RevokeRefreshTokens() {
	s.tokens.revokeRefresh()
}

// Calls returns how many requests reached method and path.
func (s *Server) Calls(method, path string) int {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	return s.calls[method+" "+path]
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.callsMu.Lock()
		s.calls[r.Method+" "+r.URL.Path]++
		s.callsMu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.Tracing("stub-api"))
	r.Use(middleware.RequestLogging(s.logger))
	r.Use(s.count)

	r.Get("/health/live", s.health.LivenessHandler())
	r.Get("/health/ready", s.health.ReadinessHandler())

	requireAccess := middleware.Auth(s.tokens.validator(typeAccess))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.register)
		r.Post("/login", s.login)
		r.Post("/refresh", s.refresh)

		r.Group(func(r chi.Router) {
			r.Use(requireAccess)
			r.Get("/me", s.me)
			r.Post("/logout", s.logout)
		})
	})

	r.Route("/categories", func(r chi.Router) {
		r.Use(requireAccess)
		r.Get("/", s.listCategories)
		r.Post("/", s.createCategory)
	})

	r.Route("/expenses", func(r chi.Router) {
		r.Use(requireAccess)
		r.Get("/", s.listExpenses)
		r.Post("/", s.createExpense)
		r.Get("/summary", s.summary)
	})

	s.router = r
}

func currentUserID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(middleware.UserIDFromContext(r.Context()), 10, 64)
	return id
}
