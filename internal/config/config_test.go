package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setEnvs sets multiple env vars for the duration of the test.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"CREDENTIAL_DIR": "/tmp/expensectl"})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.APIURL)
	assert.Equal(t, StoreBadger, cfg.CredentialStore)
	assert.Equal(t, "/tmp/expensectl", cfg.CredentialDir)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 30*time.Second, cfg.ProactiveRefreshWindow)
	assert.False(t, cfg.VerifyOnRestore, "restore is lazy unless asked")
	assert.Equal(t, "expensectl:session:", cfg.RedisKeyPrefix)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"EXPENSE_API_URL":          "https://api.example.com/v1",
		"CREDENTIAL_STORE":         "redis",
		"REDIS_PORT":               "6380",
		"VERIFY_ON_RESTORE":        "true",
		"PROACTIVE_REFRESH_WINDOW": "0",
		"RATE_LIMIT_RPS":           "5.5",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1", cfg.APIURL)
	assert.Equal(t, StoreRedis, cfg.CredentialStore)
	assert.Equal(t, 6380, cfg.RedisPort)
	assert.True(t, cfg.VerifyOnRestore)
	assert.Zero(t, cfg.ProactiveRefreshWindow)
	assert.Equal(t, 5.5, cfg.RateLimitRPS)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"bad url", map[string]string{"EXPENSE_API_URL": "localhost:5000"}, "invalid EXPENSE_API_URL"},
		{"bad store", map[string]string{"CREDENTIAL_STORE": "sqlite"}, "invalid CREDENTIAL_STORE"},
		{"bad redis port", map[string]string{"CREDENTIAL_STORE": "memory", "REDIS_PORT": "0"}, "invalid REDIS_PORT"},
		{"bad ratio", map[string]string{"CREDENTIAL_STORE": "memory", "BREAKER_FAILURE_RATIO": "1.5"}, "invalid BREAKER_FAILURE_RATIO"},
		{"bad sample rate", map[string]string{"CREDENTIAL_STORE": "memory", "OTEL_SAMPLE_RATE": "2"}, "invalid OTEL_SAMPLE_RATE"},
		{"negative window", map[string]string{"CREDENTIAL_STORE": "memory", "PROACTIVE_REFRESH_WINDOW": "-1s"}, "invalid PROACTIVE_REFRESH_WINDOW"},
		{"unparseable duration", map[string]string{"HTTP_TIMEOUT": "soon"}, "load client config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.vars)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFrom_ProductionRequiresHTTPS(t *testing.T) {
	_, err := LoadFrom(map[string]string{
		"ENVIRONMENT":      "production",
		"EXPENSE_API_URL":  "http://api.example.com",
		"CREDENTIAL_STORE": "memory",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must use https")

	cfg, err := LoadFrom(map[string]string{
		"ENVIRONMENT":      "production",
		"EXPENSE_API_URL":  "http://127.0.0.1:5000",
		"CREDENTIAL_STORE": "memory",
	})
	require.NoError(t, err, "loopback is allowed")
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoad_ReadsProcessEnvironment(t *testing.T) {
	setEnvs(t, map[string]string{
		"EXPENSE_API_URL":  "http://localhost:8080",
		"CREDENTIAL_STORE": "memory",
		"LOG_LEVEL":        "debug",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadStub_Development_AcceptsDefaultSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "development",
		"JWT_SECRET":  defaultJWTSecret,
	})

	cfg, err := LoadStub()
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.HTTPPort)
	assert.Equal(t, time.Hour, cfg.JWTAccessExpiry)
	assert.Equal(t, 720*time.Hour, cfg.JWTRefreshExpiry)
}

func TestLoadStub_Production_RejectsDefaultSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "production",
		"JWT_SECRET":  defaultJWTSecret,
	})

	cfg, err := LoadStub()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET must be explicitly set")
}

func TestLoadStub_Production_RejectsShortSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "production",
		"JWT_SECRET":  "too-short",
	})

	_, err := LoadStub()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestLoadStub_InvalidPort(t *testing.T) {
	setEnvs(t, map[string]string{"STUB_HTTP_PORT": "70000"})

	_, err := LoadStub()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}
