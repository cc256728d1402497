// Package config loads client and stub-server settings from the environment.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	pkgconfig "github.com/utafrali/ExpenseGo/pkg/config"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Credential store backends.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
	StoreRedis  = "redis"
)

// Config holds all configuration for the expense client.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"warn"`

	// API
	APIURL string `env:"EXPENSE_API_URL" envDefault:"http://localhost:5000"`

	// Transport
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
	HTTPMaxRetries    int           `env:"HTTP_MAX_RETRIES" envDefault:"2"`
	HTTPRetryWaitMin  time.Duration `env:"HTTP_RETRY_WAIT_MIN" envDefault:"200ms"`
	HTTPRetryWaitMax  time.Duration `env:"HTTP_RETRY_WAIT_MAX" envDefault:"2s"`
	BreakerTimeout    time.Duration `env:"BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerFailRatio  float64       `env:"BREAKER_FAILURE_RATIO" envDefault:"0.6"`
	BreakerMinRequest uint32        `env:"BREAKER_MIN_REQUESTS" envDefault:"5"`
	RateLimitRPS      float64       `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst    int           `env:"RATE_LIMIT_BURST" envDefault:"10"`

	// Session
	RefreshTimeout         time.Duration `env:"REFRESH_TIMEOUT" envDefault:"15s"`
	ProactiveRefreshWindow time.Duration `env:"PROACTIVE_REFRESH_WINDOW" envDefault:"30s"`
	VerifyOnRestore        bool          `env:"VERIFY_ON_RESTORE" envDefault:"false"`

	// Credential store
	CredentialStore string `env:"CREDENTIAL_STORE" envDefault:"badger"`
	CredentialDir   string `env:"CREDENTIAL_DIR"`
	RedisHost       string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort       int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix  string `env:"REDIS_KEY_PREFIX" envDefault:"expensectl:session:"`

	RedisSlowThreshold time.Duration `env:"REDIS_SLOW_THRESHOLD" envDefault:"100ms"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads client configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load client config: %w", err)
	}
	return cfg, cfg.finish()
}

// LoadFrom reads client configuration from vars instead of the process
// environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, vars); err != nil {
		return nil, fmt.Errorf("load client config: %w", err)
	}
	return cfg, cfg.finish()
}

func (c *Config) finish() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid EXPENSE_API_URL %q", c.APIURL)
	}
	// Bearer tokens must not cross the network in clear text outside
	// development.
	if c.Environment != "development" && u.Scheme == "http" && !isLoopback(u.Hostname()) {
		return fmt.Errorf("EXPENSE_API_URL must use https in %q mode", c.Environment)
	}

	switch c.CredentialStore {
	case StoreMemory, StoreRedis:
	case StoreBadger:
		if c.CredentialDir == "" {
			dir, err := defaultCredentialDir()
			if err != nil {
				return err
			}
			c.CredentialDir = dir
		}
	default:
		return fmt.Errorf("invalid CREDENTIAL_STORE %q: want memory, badger or redis", c.CredentialStore)
	}

	if c.RedisPort < 1 || c.RedisPort > 65535 {
		return fmt.Errorf("invalid REDIS_PORT: %d", c.RedisPort)
	}
	if c.HTTPMaxRetries < 0 {
		return fmt.Errorf("invalid HTTP_MAX_RETRIES: %d", c.HTTPMaxRetries)
	}
	if c.BreakerFailRatio <= 0 || c.BreakerFailRatio > 1 {
		return fmt.Errorf("invalid BREAKER_FAILURE_RATIO: %v", c.BreakerFailRatio)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("invalid OTEL_SAMPLE_RATE: %v", c.OTELSampleRate)
	}
	if c.ProactiveRefreshWindow < 0 {
		return fmt.Errorf("invalid PROACTIVE_REFRESH_WINDOW: %v", c.ProactiveRefreshWindow)
	}
	return nil
}

func defaultCredentialDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir (set CREDENTIAL_DIR): %w", err)
	}
	return filepath.Join(base, "expensectl", "session"), nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// StubConfig holds configuration for the stub API server.
type StubConfig struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort int `env:"STUB_HTTP_PORT" envDefault:"5000"`

	// JWT
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"1h"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"720h"`

	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// LoadStub reads stub server configuration from the environment.
func LoadStub() (*StubConfig, error) {
	cfg := &StubConfig{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load stub config: %w", err)
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}

	// In non-development environments, require an explicitly set, strong JWT secret.
	if cfg.Environment != "development" {
		if cfg.JWTSecret == defaultJWTSecret {
			return nil, fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", cfg.Environment)
		}
		if len(cfg.JWTSecret) < 32 {
			return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(cfg.JWTSecret))
		}
	}
	if cfg.JWTAccessExpiry <= 0 || cfg.JWTRefreshExpiry <= 0 {
		return nil, fmt.Errorf("token expiries must be positive")
	}
	return cfg, nil
}
