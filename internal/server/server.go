package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openodds/markethub/internal/domain"
	"github.com/openodds/markethub/internal/server/handler"
	"github.com/openodds/markethub/internal/server/middleware"
	"github.com/openodds/markethub/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per client per minute; 0 disables limiting
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Oracle    *handler.OracleHandler
	Bets      *handler.BetHandler
	Orders    *handler.OrderHandler
	Positions *handler.PositionHandler
	Pool      *handler.PoolHandler
}

// Server is the HTTP + WebSocket API server for the market hub.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (rate limiting, logging, CORS, auth) and attaches
// the WebSocket hub. limiter may be nil when limiting is disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market endpoints.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/prices", handlers.Markets.GetPrices)
	mux.HandleFunc("GET /api/markets/{id}/depth", handlers.Orders.GetDepth)

	// Oracle lifecycle endpoints (operator only).
	mux.HandleFunc("POST /api/oracle/markets", handlers.Oracle.CreateMarket)
	mux.HandleFunc("POST /api/oracle/markets/{id}/open", handlers.Oracle.OpenMarket)
	mux.HandleFunc("POST /api/oracle/markets/{id}/close", handlers.Oracle.CloseMarket)
	mux.HandleFunc("POST /api/oracle/markets/{id}/resolve", handlers.Oracle.ResolveMarket)
	mux.HandleFunc("GET /api/oracle/markets/{id}/archive", handlers.Oracle.GetResolutionArchive)
	mux.HandleFunc("GET /api/oracle/archives", handlers.Oracle.ListResolutionArchives)
	mux.HandleFunc("POST /api/oracle/fund", handlers.Oracle.FundAccounts)

	// Bet endpoint.
	mux.HandleFunc("POST /api/bets", handlers.Bets.PlaceBet)

	// Order endpoints.
	mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("GET /api/orders/{id}", handlers.Orders.GetOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.CancelOrder)

	// Position endpoints.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)

	// Liquidity pool endpoints.
	mux.HandleFunc("GET /api/pool", handlers.Pool.GetStats)
	mux.HandleFunc("GET /api/pool/events", handlers.Pool.ListEvents)
	mux.HandleFunc("GET /api/pool/shares/{address}", handlers.Pool.GetShare)
	mux.HandleFunc("POST /api/pool/deposits", handlers.Pool.Deposit)
	mux.HandleFunc("POST /api/pool/withdrawals", handlers.Pool.Withdraw)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-client rate limiting when a limiter is configured.
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
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
		mux:        mux,
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
