package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/ExpenseGo/internal/config"
	"github.com/utafrali/ExpenseGo/internal/domain"
	"github.com/utafrali/ExpenseGo/internal/stubapi"
	apperrors "github.com/utafrali/ExpenseGo/pkg/errors"
	"github.com/utafrali/ExpenseGo/pkg/health"
	"github.com/utafrali/ExpenseGo/pkg/logger"
)

func startStub(t *testing.T) (*stubapi.Server, string) {
	t.Helper()
	stub := stubapi.New(stubapi.Config{JWTSecret: "test-secret", BcryptCost: bcrypt.MinCost})
	srv := httptest.NewServer(stub.Handler())
	t.Cleanup(srv.Close)
	return stub, srv.URL
}

func newClient(t *testing.T, vars map[string]string) *Client {
	t.Helper()
	cfg, err := config.LoadFrom(vars)
	require.NoError(t, err)

	c, err := NewClient(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func registerInput() domain.RegisterInput {
	return domain.RegisterInput{
		FirstName:       "Alice",
		LastName:        "Smith",
		Email:           "alice@example.com",
		Username:        "alice",
		Password:        "Secret123!",
		ConfirmPassword: "Secret123!",
	}
}

func TestClient_FullSessionAgainstStub(t *testing.T) {
	stub, url := startStub(t)
	c := newClient(t, map[string]string{"EXPENSE_API_URL": url, "CREDENTIAL_STORE": "memory"})
	ctx := context.Background()

	assert.Equal(t, domain.StatusAnonymous, c.Restore(ctx).Status)

	res := c.Session.Register(ctx, registerInput())
	require.True(t, res.OK, res.Message)
	snap := c.Session.Snapshot()
	require.True(t, snap.IsAuthenticated())
	assert.Equal(t, "alice", snap.User.Username)

	cat, err := c.Expenses.CreateCategory(ctx, domain.NewCategory{Name: "Groceries", Color: "#00ff00"})
	require.NoError(t, err)

	_, err = c.Expenses.CreateExpense(ctx, domain.NewExpense{
		Amount: 12.5, Description: "Milk", Date: "2024-03-01", CategoryID: cat.ID,
	})
	require.NoError(t, err)

	// The access token expires server-side; the next call refreshes and
	// retries without the caller noticing.
	stub.ExpireAccessTokens()
	page, err := c.Expenses.ListExpenses(ctx, domain.ExpenseQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Milk", page.Items[0].Description)
	assert.Equal(t, 1, stub.Calls(http.MethodPost, "/auth/refresh"))
	assert.True(t, c.Session.Snapshot().IsAuthenticated())

	// With the refresh token revoked too, the session ends.
	stub.ExpireAccessTokens()
	stub.RevokeRefreshTokens()
	_, err = c.Expenses.Summary(ctx, "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
	assert.Equal(t, domain.StatusAnonymous, c.Session.Snapshot().Status)
	assert.Empty(t, c.Session.AccessToken())
}

func TestClient_BadgerPersistsAcrossRestarts(t *testing.T) {
	_, url := startStub(t)
	dir := t.TempDir()
	vars := map[string]string{"EXPENSE_API_URL": url, "CREDENTIAL_STORE": "badger", "CREDENTIAL_DIR": dir}
	ctx := context.Background()

	cfg, err := config.LoadFrom(vars)
	require.NoError(t, err)
	first, err := NewClient(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	require.True(t, first.Session.Register(ctx, registerInput()).OK)
	require.NoError(t, first.Close())

	second := newClient(t, vars)
	snap := second.Restore(ctx)
	require.True(t, snap.IsAuthenticated())
	assert.Equal(t, "alice@example.com", snap.User.Email)

	user, err := second.Auth.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	require.True(t, second.Session.Logout(ctx).OK)
	assert.Equal(t, domain.StatusAnonymous, second.Session.Snapshot().Status)
}

func TestClient_VerifyOnRestoreDropsDeadSession(t *testing.T) {
	stub, url := startStub(t)
	dir := t.TempDir()
	ctx := context.Background()

	cfg, err := config.LoadFrom(map[string]string{"EXPENSE_API_URL": url, "CREDENTIAL_DIR": dir})
	require.NoError(t, err)
	first, err := NewClient(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	require.True(t, first.Session.Register(ctx, registerInput()).OK)
	require.NoError(t, first.Close())

	stub.ExpireAccessTokens()
	stub.RevokeRefreshTokens()

	second := newClient(t, map[string]string{
		"EXPENSE_API_URL":   url,
		"CREDENTIAL_DIR":    dir,
		"VERIFY_ON_RESTORE": "true",
	})
	snap := second.Restore(ctx)
	assert.Equal(t, domain.StatusAnonymous, snap.Status)

	// The store was cleared, so a lazy restore also comes up signed out.
	require.NoError(t, second.Close())
	third := newClient(t, map[string]string{"EXPENSE_API_URL": url, "CREDENTIAL_DIR": dir})
	assert.Equal(t, domain.StatusAnonymous, third.Restore(ctx).Status)
}

func TestClient_RedisBackend(t *testing.T) {
	_, url := startStub(t)
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c := newClient(t, map[string]string{
		"EXPENSE_API_URL":  url,
		"CREDENTIAL_STORE": "redis",
		"REDIS_HOST":       mr.Host(),
		"REDIS_PORT":       mr.Port(),
		"REDIS_KEY_PREFIX": "test:",
	})

	require.True(t, c.Session.Register(ctx, registerInput()).OK)
	assert.True(t, mr.Exists("test:access_token"))
	assert.True(t, mr.Exists("test:user"))

	resp := c.Health.Check(ctx)
	assert.Equal(t, health.StatusUp, resp.Status)
	assert.Contains(t, resp.Names(), "redis")
	assert.Contains(t, resp.Names(), "credentials")

	families, err := c.Registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "redis_pool_total_connections")
}

func TestClient_RedisUnreachable(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"CREDENTIAL_STORE": "redis",
		"REDIS_HOST":       "127.0.0.1",
		"REDIS_PORT":       "1",
	})
	require.NoError(t, err)

	_, err = NewClient(context.Background(), cfg, logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestClient_RegistersMetrics(t *testing.T) {
	_, url := startStub(t)
	c := newClient(t, map[string]string{"EXPENSE_API_URL": url, "CREDENTIAL_STORE": "memory"})
	require.True(t, c.Session.Register(context.Background(), registerInput()).OK)

	families, err := c.Registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "expense_client_circuit_breaker_state")
	assert.Contains(t, names, "expense_client_requests_total")
	assert.Equal(t, "closed", c.BreakerState())
}

func TestStubApp_ServesAPIAndMetrics(t *testing.T) {
	a, err := NewStubApp(&config.StubConfig{
		Environment:      "development",
		HTTPPort:         5000,
		JWTSecret:        "test-secret",
		JWTAccessExpiry:  time.Hour,
		JWTRefreshExpiry: time.Hour,
	}, logger.Discard())
	require.NoError(t, err)

	for _, path := range []string{"/health/live", "/metrics"} {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/categories", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStubApp_ServeStopsOnCancel(t *testing.T) {
	a, err := NewStubApp(&config.StubConfig{
		HTTPPort:         5000,
		JWTSecret:        "test-secret",
		JWTAccessExpiry:  time.Hour,
		JWTRefreshExpiry: time.Hour,
	}, logger.Discard())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health/live")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestDashboard_GuardsRoutesOverLiveSession(t *testing.T) {
	stub, url := startStub(t)
	c := newClient(t, map[string]string{"EXPENSE_API_URL": url, "CREDENTIAL_STORE": "memory"})
	ctx := context.Background()
	d := NewDashboard(c, "127.0.0.1:0")

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept", "application/json")
		rec := httptest.NewRecorder()
		d.Handler().ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, get("/dashboard").Code)

	require.True(t, c.Session.Register(ctx, registerInput()).OK)
	rec := get("/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)

	// A server-side expiry is absorbed by refresh-and-retry behind the guard.
	stub.ExpireAccessTokens()
	assert.Equal(t, http.StatusOK, get("/categories").Code)

	stub.ExpireAccessTokens()
	stub.RevokeRefreshTokens()
	assert.Equal(t, http.StatusUnauthorized, get("/categories").Code)
	assert.Equal(t, http.StatusUnauthorized, get("/me").Code, "the ended session is guarded")
}

func TestDashboard_ServeStopsOnCancel(t *testing.T) {
	_, url := startStub(t)
	c := newClient(t, map[string]string{"EXPENSE_API_URL": url, "CREDENTIAL_STORE": "memory"})
	d := NewDashboard(c, "127.0.0.1:0")

	ln, err := d.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/login")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dashboard did not stop")
	}
}
