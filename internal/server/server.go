// Package server assembles the HTTP API: routing, middleware, and the
// WebSocket feed endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradepost/internal/domain"
	"github.com/alanyoungcy/tradepost/internal/server/handler"
	"github.com/alanyoungcy/tradepost/internal/server/middleware"
	"github.com/alanyoungcy/tradepost/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	LoginRateLimit  int
	LoginRateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health *handler.HealthHandler
	Auth   *handler.AuthHandler
	Market *handler.MarketHandler
	Escrow *handler.EscrowHandler
	Admin  *handler.AdminHandler
}

// Server is the HTTP + WebSocket API for the marketplace.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain: CORS and
// request logging wrap everything; bearer auth wraps each protected route;
// the rate limiter wraps login only.
func NewServer(
	cfg Config,
	handlers Handlers,
	authn middleware.Authenticator,
	limiter domain.RateLimiter,
	wsHub *ws.Hub,
	logger *slog.Logger,
) *Server {
	mux := http.NewServeMux()

	requireAuth := middleware.RequireAuth(authn)
	protected := func(h http.HandlerFunc) http.Handler {
		return requireAuth(h)
	}

	// Token lifecycle. Login is rate limited per client IP; logout takes
	// the raw bearer header itself so a malformed-but-known token can
	// still be revoked.
	loginLimit := middleware.RateLimit(limiter, cfg.LoginRateLimit, cfg.LoginRateWindow)
	mux.Handle("POST /auth/login", loginLimit(http.HandlerFunc(handlers.Auth.Login)))
	mux.HandleFunc("POST /auth/logout", handlers.Auth.Logout)
	mux.Handle("GET /auth/validate", protected(handlers.Auth.Validate))

	// Marketplace.
	mux.Handle("GET /api/market/listings", protected(handlers.Market.ListListings))
	mux.Handle("POST /api/market/buy", protected(handlers.Market.Buy))
	mux.Handle("POST /api/market/sell", protected(handlers.Market.Sell))
	mux.Handle("GET /api/market/mine", protected(handlers.Market.MyListings))
	mux.Handle("DELETE /api/market/listings/{id}", protected(handlers.Market.Remove))
	mux.Handle("POST /api/market/remove", protected(handlers.Market.RemoveByIndex))
	mux.Handle("GET /api/market/stats", protected(handlers.Market.Stats))

	// Escrow.
	mux.Handle("GET /api/sales/pending", protected(handlers.Escrow.Pending))
	mux.Handle("POST /api/sales/claim", protected(handlers.Escrow.Claim))

	// User.
	mux.Handle("GET /api/user/info", protected(handlers.Market.UserInfo))

	// Operator endpoints.
	mux.Handle("GET /api/admin/users", protected(handlers.Admin.ActiveUsers))
	mux.Handle("GET /api/admin/sessions", protected(handlers.Admin.Sessions))
	mux.Handle("POST /api/admin/sweep", protected(handlers.Admin.Sweep))

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Live market feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
