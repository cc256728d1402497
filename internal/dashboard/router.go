// Package dashboard serves a local JSON dashboard over the signed-in
// session. Pages behind RequireAuth read the user from the request context;
// the login page is kept away from signed-in sessions.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/ExpenseGo/internal/domain"
	"github.com/utafrali/ExpenseGo/internal/guard"
	"github.com/utafrali/ExpenseGo/internal/session"
	"github.com/utafrali/ExpenseGo/pkg/health"
	"github.com/utafrali/ExpenseGo/pkg/httputil"
	"github.com/utafrali/ExpenseGo/pkg/logger"
	"github.com/utafrali/ExpenseGo/pkg/middleware"
)

const maxBody = 64 << 10

// Session is the part of the session manager the dashboard drives.
// *session.Manager satisfies it.
type Session interface {
	guard.Source
	Login(ctx context.Context, in domain.LoginInput) session.Result
	Logout(ctx context.Context) session.Result
}

// Expenses reads the signed-in user's data. *expenseapi.Client satisfies it.
type Expenses interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListExpenses(ctx context.Context, q domain.ExpenseQuery) (*domain.ExpensePage, error)
	Summary(ctx context.Context, start, end string) (*domain.Summary, error)
}

// Config holds the dashboard's dependencies. Health and Gatherer are
// optional.
type Config struct {
	Session  Session
	Expenses Expenses
	Health   *health.Handler
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type handler struct {
	session  Session
	expenses Expenses
	logger   *slog.Logger
}

type userResponse struct {
	User *domain.User `json:"user"`
}

type overviewResponse struct {
	User       *domain.User      `json:"user"`
	Summary    *domain.Summary   `json:"summary"`
	Categories []domain.Category `json:"categories"`
}

// NewRouter builds the dashboard routes.
func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	h := &handler{session: cfg.Session, expenses: cfg.Expenses, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Tracing("expensectl-dashboard"))
	r.Use(middleware.RequestLogging(cfg.Logger))

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.LivenessHandler())
		r.Get("/health/ready", cfg.Health.ReadinessHandler())
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	opts := guard.Options{LoginPath: "/login", HomePath: "/dashboard"}

	r.With(guard.RedirectIfAuthenticated(cfg.Session, opts)).Get("/login", h.loginPage)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)

	r.Group(func(r chi.Router) {
		r.Use(guard.RequireAuth(cfg.Session, opts))
		r.Get("/dashboard", h.overview)
		r.Get("/me", h.me)
		r.Get("/categories", h.categories)
		r.Get("/expenses", h.listExpenses)
		r.Get("/expenses/summary", h.summary)
	})

	return r
}

// loginPage handles GET /login for visitors without a session.
func (h *handler) loginPage(w http.ResponseWriter, r *http.Request) {
	snap := h.session.Snapshot()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": snap.Status.String(),
		"error":  snap.Error,
		"fields": snap.Fields,
	})
}

// login handles POST /login
func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	var in domain.LoginInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteMessage(w, http.StatusBadRequest, "No JSON data provided")
		return
	}

	res := h.session.Login(r.Context(), in)
	if !res.OK {
		writeResult(w, res)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, userResponse{User: h.session.Snapshot().User})
}

// logout handles POST /logout
func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if res := h.session.Logout(r.Context()); !res.OK {
		writeResult(w, res)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// overview handles GET /dashboard
func (h *handler) overview(w http.ResponseWriter, r *http.Request) {
	user, _ := guard.UserFromContext(r.Context())

	sum, err := h.expenses.Summary(r.Context(), "", "")
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	cats, err := h.expenses.ListCategories(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, overviewResponse{User: user, Summary: sum, Categories: cats})
}

// me handles GET /me
func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	user, _ := guard.UserFromContext(r.Context())
	httputil.WriteJSON(w, http.StatusOK, userResponse{User: user})
}

// categories handles GET /categories
func (h *handler) categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.expenses.ListCategories(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"categories": cats, "total": len(cats)})
}

// listExpenses handles GET /expenses
func (h *handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	categoryID, _ := strconv.ParseInt(q.Get("category_id"), 10, 64)

	page, err := h.expenses.ListExpenses(r.Context(), domain.ExpenseQuery{
		Page:       httputil.QueryInt(r, "page", 1, 1, 1<<20),
		PerPage:    httputil.QueryInt(r, "per_page", 20, 1, 100),
		CategoryID: categoryID,
		StartDate:  q.Get("start_date"),
		EndDate:    q.Get("end_date"),
		Search:     q.Get("search"),
		SortBy:     q.Get("sort_by"),
		SortOrder:  q.Get("sort_order"),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// summary handles GET /expenses/summary
func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sum, err := h.expenses.Summary(r.Context(), q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sum)
}

func writeResult(w http.ResponseWriter, res session.Result) {
	httputil.WriteJSON(w, resultStatus(res.Kind), httputil.ErrorResponse{Error: res.Message, Fields: res.Fields})
}

func resultStatus(k session.Kind) int {
	switch k {
	case session.KindValidation:
		return http.StatusBadRequest
	case session.KindAuth, session.KindEnded:
		return http.StatusUnauthorized
	case session.KindNetwork:
		return http.StatusBadGateway
	case session.KindState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
