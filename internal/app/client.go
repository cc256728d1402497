// Package app wires the client's dependencies and the stub server process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/utafrali/ExpenseGo/internal/authapi"
	"github.com/utafrali/ExpenseGo/internal/config"
	"github.com/utafrali/ExpenseGo/internal/credstore"
	"github.com/utafrali/ExpenseGo/internal/expenseapi"
	"github.com/utafrali/ExpenseGo/internal/gateway"
	"github.com/utafrali/ExpenseGo/internal/session"
	"github.com/utafrali/ExpenseGo/pkg/database"
	"github.com/utafrali/ExpenseGo/pkg/health"
	"github.com/utafrali/ExpenseGo/pkg/httpclient"
	"github.com/utafrali/ExpenseGo/pkg/tracing"
)

// Client is a fully wired API client: credential store, transport, gateway
// and session manager.
type Client struct {
	Session  *session.Manager
	Gateway  *gateway.Gateway
	Auth     *authapi.Client
	Expenses *expenseapi.Client
	Health   *health.Handler
	Registry *prometheus.Registry

	cfg            *config.Config
	logger         *slog.Logger
	store          *credstore.Store
	breaker        *httpclient.CircuitBreakerClient
	tracerShutdown func(context.Context) error

	closeOnce sync.Once
	closeErr  error
}

// NewClient builds a Client from cfg. The session starts Anonymous; call
// Restore to load persisted credentials.
func NewClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "expensectl",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler()
	reg := prometheus.NewRegistry()

	backend, err := openBackend(ctx, cfg, logger, healthHandler, reg)
	if err != nil {
		_ = tracerShutdown(ctx)
		return nil, err
	}
	store := credstore.New(backend, logger)
	healthHandler.Register("credentials", store.Ping)

	base := httpclient.New(httpclient.Config{
		Timeout:         cfg.HTTPTimeout,
		MaxRetries:      cfg.HTTPMaxRetries,
		RetryWaitMin:    cfg.HTTPRetryWaitMin,
		RetryWaitMax:    cfg.HTTPRetryWaitMax,
		MaxConnsPerHost: 16,
	})
	cbCfg := httpclient.DefaultCircuitBreakerConfig("expense-api")
	cbCfg.Timeout = cfg.BreakerTimeout
	cbCfg.FailureRatio = cfg.BreakerFailRatio
	cbCfg.MinRequests = cfg.BreakerMinRequest
	breaker := httpclient.NewCircuitBreakerClient(base, cbCfg, logger, httpclient.NewBreakerMetrics(reg))

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	gw, err := gateway.New(cfg.APIURL, breaker, gateway.Options{
		Logger:          logger,
		Metrics:         gateway.NewMetrics(reg),
		Limiter:         limiter,
		RefreshTimeout:  cfg.RefreshTimeout,
		ProactiveWindow: cfg.ProactiveRefreshWindow,
	})
	if err != nil {
		_ = store.Close()
		_ = tracerShutdown(ctx)
		return nil, fmt.Errorf("create gateway: %w", err)
	}

	auth := authapi.New(gw)
	mgr := session.NewManager(store, auth, session.Options{
		Logger:          logger,
		VerifyOnRestore: cfg.VerifyOnRestore,
	})
	gw.Attach(mgr)

	logger.Debug("client initialized",
		slog.String("api_url", cfg.APIURL),
		slog.String("credential_store", cfg.CredentialStore),
	)

	return &Client{
		Session:        mgr,
		Gateway:        gw,
		Auth:           auth,
		Expenses:       expenseapi.New(gw),
		Health:         healthHandler,
		Registry:       reg,
		cfg:            cfg,
		logger:         logger,
		store:          store,
		breaker:        breaker,
		tracerShutdown: tracerShutdown,
	}, nil
}

// openBackend selects the credential backend named by cfg.CredentialStore.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger, hh *health.Handler, reg prometheus.Registerer) (credstore.Backend, error) {
	switch cfg.CredentialStore {
	case config.StoreMemory:
		return credstore.NewMemoryBackend(), nil
	case config.StoreBadger:
		b, err := credstore.OpenBadger(cfg.CredentialDir, logger)
		if err != nil {
			return nil, fmt.Errorf("open credential store: %w", err)
		}
		logger.Debug("opened badger credential store", slog.String("dir", cfg.CredentialDir))
		return b, nil
	case config.StoreRedis:
		redisCfg := database.DefaultRedisConfig()
		redisCfg.Host = cfg.RedisHost
		redisCfg.Port = cfg.RedisPort
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		redisCfg.SlowThreshold = cfg.RedisSlowThreshold
		redisCfg.Logger = logger
		client, err := database.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		hh.Register("redis", database.RedisChecker(client))
		reg.MustRegister(database.NewPoolStatsCollector(client, "expensectl"))
		logger.Debug("connected to redis", slog.String("addr", redisCfg.Addr()))
		return credstore.NewRedisBackend(client, cfg.RedisKeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown credential store %q", cfg.CredentialStore)
	}
}

// Restore loads the persisted session.
func (c *Client) Restore(ctx context.Context) session.Snapshot {
	return c.Session.Restore(ctx)
}

// Config returns the configuration the client was built from.
func (c *Client) Config() *config.Config {
	return c.cfg
}

// BreakerState reports the transport circuit breaker state.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Close flushes spans and releases the credential store. It is safe to
// call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.close() })
	return c.closeErr
}

func (c *Client) close() error {
	var errs []error

	if c.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
		defer cancel()
		if err := c.tracerShutdown(ctx); err != nil {
			c.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := c.store.Close(); err != nil {
		c.logger.Error("credential store close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
