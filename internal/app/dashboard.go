package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/utafrali/ExpenseGo/internal/dashboard"
)

// Dashboard serves the local session dashboard for a Client. The Client
// stays owned by the caller.
type Dashboard struct {
	logger     *slog.Logger
	httpServer *http.Server
}

// NewDashboard creates a dashboard server bound to addr.
func NewDashboard(c *Client, addr string) *Dashboard {
	router := dashboard.NewRouter(dashboard.Config{
		Session:  c.Session,
		Expenses: c.Expenses,
		Health:   c.Health,
		Gatherer: c.Registry,
		Logger:   c.logger,
	})

	return &Dashboard{
		logger: c.logger,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      c.cfg.RefreshTimeout + c.cfg.HTTPTimeout,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the dashboard's root handler.
func (d *Dashboard) Handler() http.Handler {
	return d.httpServer.Handler
}

// Listen opens the dashboard's listener.
func (d *Dashboard) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", d.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", d.httpServer.Addr, err)
	}
	return ln, nil
}

// Serve serves on ln until the context is canceled, then drains in-flight
// requests.
func (d *Dashboard) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		d.logger.Info("starting dashboard", slog.String("addr", ln.Addr().String()))
		if err := d.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("dashboard server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
		d.logger.Error("dashboard shutdown error", slog.String("error", err.Error()))
		return err
	}
	d.logger.Info("dashboard stopped")
	return nil
}
