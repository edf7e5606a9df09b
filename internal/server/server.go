package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/server/handler"
	"github.com/alanyoungcy/marketledger/internal/server/middleware"
	"github.com/alanyoungcy/marketledger/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	ResolverKey string

	// RateLimit is the number of requests a client may make per
	// RateWindow. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Markets     *handler.MarketHandler
	Settlements *handler.SettlementHandler
}

// Deps are the collaborators the middleware chain needs. Limiter and
// Verifier may be nil.
type Deps struct {
	Limiter  domain.RateLimiter
	Verifier middleware.SignatureVerifier
	Hub      *ws.Hub
}

// Server is the HTTP + WebSocket API of the ledger.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain.
func NewServer(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) *Server {
	h := Routes(cfg, handlers, deps, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// Routes builds the full handler tree: the route table behind auth, rate
// limiting, request logging and CORS.
func Routes(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	resolver := middleware.Resolver(cfg.ResolverKey, deps.Verifier, logger)
	resolverKey := middleware.ResolverKeyOnly(cfg.ResolverKey)

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Markets and bets.
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets/{id}/bets", handlers.Markets.PlaceBet)
	mux.Handle("POST /api/markets/{id}/close", resolverKey(http.HandlerFunc(handlers.Markets.CloseMarket)))

	// Resolution and rewards.
	mux.Handle("POST /api/markets/{id}/resolve", resolver(http.HandlerFunc(handlers.Settlements.Resolve)))
	mux.Handle("POST /api/markets/{id}/resettle", resolverKey(http.HandlerFunc(handlers.Settlements.Resettle)))
	mux.HandleFunc("POST /api/markets/{id}/claim", handlers.Settlements.Claim)
	mux.HandleFunc("GET /api/markets/{id}/rewards", handlers.Settlements.MarketRewards)
	mux.HandleFunc("GET /api/users/{id}/rewards", handlers.Settlements.UserRewards)
	mux.HandleFunc("GET /api/users/{id}/bets", handlers.Markets.UserBets)
	mux.HandleFunc("GET /api/users/{id}/balance", handlers.Settlements.UserBalance)

	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	if deps.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
