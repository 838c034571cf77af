// Package app provides top-level lifecycle management: it wires the stores,
// caches, blob storage, and services, then runs the HTTP server and the
// background loops as one cancellable group.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradepost/internal/config"
	"github.com/alanyoungcy/tradepost/internal/server"
	"github.com/alanyoungcy/tradepost/internal/server/handler"
	"github.com/alanyoungcy/tradepost/internal/server/ws"
)

// shutdownGrace bounds how long in-flight requests may run after the stop
// signal.
const shutdownGrace = 15 * time.Second

// App is the root application object. It owns the configuration, logger,
// and cleanup functions called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies and starts the HTTP server, the WebSocket hub, the
// sweeper, and (when enabled) the archiver loop. It blocks until the context
// is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	hub := ws.NewHub(deps.EventBus, a.logger)

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Postgres, deps.Redis, a.logger),
		Auth:   handler.NewAuthHandler(deps.Auth, a.logger),
		Market: handler.NewMarketHandler(deps.Market, a.logger),
		Escrow: handler.NewEscrowHandler(deps.Market, a.logger),
		Admin:  handler.NewAdminHandler(deps.Sweeper, deps.Sessions, deps.Tokens, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		LoginRateLimit:  a.cfg.Server.LoginRateLimit,
		LoginRateWindow: a.cfg.Server.LoginRateWindow.Duration,
	}, handlers, deps.Auth, deps.RateLimiter, hub, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		return deps.Sweeper.Run(gctx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(gctx, deps)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// archiveLoop snapshots old transaction history on the configured interval.
// Failures are logged; the loop only stops on cancellation.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer ticker.Stop()

	a.logger.Info("archiver started",
		slog.Duration("interval", a.cfg.Archive.Interval.Duration),
		slog.Duration("max_age", a.cfg.Archive.MaxAge.Duration))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-a.cfg.Archive.MaxAge.Duration)
			n, err := deps.Archiver.ArchiveTransactions(ctx, cutoff)
			if err != nil {
				a.logger.Error("archive pass failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.Info("archive pass complete", slog.Int("records", n))
			}
		}
	}
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
