package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/stakeboard/internal/domain"
	"github.com/alanyoungcy/stakeboard/internal/server/handler"
	"github.com/alanyoungcy/stakeboard/internal/server/middleware"
	"github.com/alanyoungcy/stakeboard/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKeys     []string // if empty, authentication is disabled

	// RateLimiter enables per-client rate limiting when non-nil.
	RateLimiter     domain.RateLimiter
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Bounties  *handler.BountyHandler
	Positions *handler.PositionHandler
}

// Server is the headless HTTP + WebSocket API server for the coordination
// board.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, optional rate limiting) and
// attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Escrow market endpoints.
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets/{id}/take", handlers.Markets.TakeMarket)
	mux.HandleFunc("POST /api/markets/{id}/submit", handlers.Markets.SubmitProof)
	mux.HandleFunc("POST /api/markets/{id}/settle", handlers.Markets.SettleMarket)
	mux.HandleFunc("POST /api/markets/{id}/cancel", handlers.Markets.CancelMarket)
	mux.HandleFunc("POST /api/markets/{id}/expire", handlers.Markets.ExpireMarket)
	mux.HandleFunc("POST /api/markets/{id}/dispute", handlers.Markets.DisputeMarket)

	// Range bounty endpoints.
	mux.HandleFunc("POST /api/bounties", handlers.Bounties.CreateBounty)
	mux.HandleFunc("GET /api/bounties", handlers.Bounties.ListBounties)
	mux.HandleFunc("GET /api/bounties/{id}", handlers.Bounties.GetBounty)
	mux.HandleFunc("POST /api/bounties/{id}/cancel", handlers.Bounties.CancelBounty)
	mux.HandleFunc("GET /api/bounties/{id}/ranges/{idx}", handlers.Bounties.GetRange)
	mux.HandleFunc("POST /api/bounties/{id}/ranges/{idx}/claim", handlers.Bounties.ClaimRange)
	mux.HandleFunc("POST /api/bounties/{id}/ranges/{idx}/submit", handlers.Bounties.SubmitRange)
	mux.HandleFunc("POST /api/bounties/{id}/ranges/{idx}/verify", handlers.Bounties.VerifyRange)
	mux.HandleFunc("GET /api/bounties/{id}/rewards", handlers.Bounties.PreviewReward)
	mux.HandleFunc("POST /api/bounties/{id}/rewards/claim", handlers.Bounties.ClaimRewards)
	mux.HandleFunc("GET /api/bounties/{id}/contributions/{participant}", handlers.Bounties.GetContribution)

	// Condition and position endpoints.
	mux.HandleFunc("POST /api/conditions", handlers.Positions.PrepareCondition)
	mux.HandleFunc("GET /api/conditions", handlers.Positions.ListUnresolved)
	mux.HandleFunc("POST /api/conditions/report", handlers.Positions.ReportPayouts)
	mux.HandleFunc("GET /api/conditions/{id}", handlers.Positions.GetCondition)
	mux.HandleFunc("GET /api/conditions/{id}/balance", handlers.Positions.GetBalance)
	mux.HandleFunc("POST /api/conditions/{id}/split", handlers.Positions.SplitPosition)
	mux.HandleFunc("POST /api/conditions/{id}/merge", handlers.Positions.MergePosition)
	mux.HandleFunc("POST /api/conditions/{id}/liquidity", handlers.Positions.AddLiquidity)
	mux.HandleFunc("POST /api/conditions/{id}/buy", handlers.Positions.BuyPosition)
	mux.HandleFunc("POST /api/conditions/{id}/sell", handlers.Positions.SellPosition)
	mux.HandleFunc("POST /api/conditions/{id}/redeem", handlers.Positions.RedeemPosition)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if no keys are configured).
	h = middleware.Auth(cfg.APIKeys)(h)

	// Apply rate limiting when a limiter is configured.
	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
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
