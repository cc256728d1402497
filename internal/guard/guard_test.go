package guard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ExpenseGo/internal/domain"
	"github.com/utafrali/ExpenseGo/internal/session"
)

type staticSource struct{ snap session.Snapshot }

func (s *staticSource) Snapshot() session.Snapshot { return s.snap }

func newRouter(src Source) http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(src, Options{}))
		r.Get("/dashboard", func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte("hello " + u.Username))
		})
	})
	r.Group(func(r chi.Router) {
		r.Use(RedirectIfAuthenticated(src, Options{}))
		r.Get("/login", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("login form"))
		})
	})
	return r
}

func serve(h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var signedIn = session.Snapshot{
	Status: domain.StatusAuthenticated,
	User:   &domain.User{ID: 1, Username: "alice"},
}

func TestRequireAuth_Authenticated(t *testing.T) {
	rec := serve(newRouter(&staticSource{snap: signedIn}), "/dashboard", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello alice", rec.Body.String())
}

func TestRequireAuth_RedirectsToLoginWithFrom(t *testing.T) {
	rec := serve(newRouter(&staticSource{}), "/dashboard?month=2024-05", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?from=%2Fdashboard%3Fmonth%3D2024-05", rec.Header().Get("Location"))
}

func TestRequireAuth_JSONClientsGet401(t *testing.T) {
	rec := serve(newRouter(&staticSource{snap: session.Snapshot{Status: domain.StatusFailed, Error: "Invalid email or password"}}),
		"/dashboard", http.Header{"Accept": {"application/json"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Authorization token required", body["error"])
}

func TestRequireAuth_LoadingAnswers503(t *testing.T) {
	rec := serve(newRouter(&staticSource{snap: session.Snapshot{Status: domain.StatusAuthenticating}}), "/dashboard", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRedirectIfAuthenticated(t *testing.T) {
	tests := []struct {
		name   string
		src    *staticSource
		target string
		code   int
		loc    string
	}{
		{"anonymous sees form", &staticSource{}, "/login", http.StatusOK, ""},
		{"signed in goes home", &staticSource{snap: signedIn}, "/login", http.StatusFound, "/dashboard"},
		{"signed in goes to from", &staticSource{snap: signedIn}, "/login?from=%2Fexpenses", http.StatusFound, "/expenses"},
		{"external from ignored", &staticSource{snap: signedIn}, "/login?from=https%3A%2F%2Fevil.example", http.StatusFound, "/dashboard"},
		{"protocol-relative from ignored", &staticSource{snap: signedIn}, "/login?from=%2F%2Fevil.example", http.StatusFound, "/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newRouter(tt.src), tt.target, nil)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.loc, rec.Header().Get("Location"))
		})
	}
}

func TestUserFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := UserFromContext(req.Context())
	assert.False(t, ok)

	_, ok = UserFromContext(WithUser(req.Context(), nil))
	assert.False(t, ok)
}
