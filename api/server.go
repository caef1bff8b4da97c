// Package api is the HTTP boundary (§6): position opens, policy
// CRUD, read-only wallet/execution listings, health, and aggregate
// network telemetry. Grounded on the teacher's APIServer (mux router,
// CORS, JSON envelope) generalized to this node's domain objects.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/curvesentinel/node/internal/chain"
	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/internal/execution"
	"github.com/curvesentinel/node/internal/policy"
	"github.com/curvesentinel/node/internal/state"
	"github.com/curvesentinel/node/internal/store"
	"github.com/curvesentinel/node/pkg/middleware"
	"github.com/curvesentinel/node/pkg/observability"
)

// Server is the HTTP boundary (§6 HTTP surface).
type Server struct {
	logger *observability.Logger
	cfg    config.ServerConfig

	router *mux.Router
	server *http.Server

	store      store.Store
	kv         *store.KV
	state      *state.Engine
	policy     *policy.Engine
	chain      *chain.Client
	wallet     *chain.Wallet
	execEngine *execution.Engine
	risk       config.RiskConfig
	metrics    *observability.MetricsProvider
}

// Deps carries every collaborator the HTTP boundary needs. Metrics is
// optional; a nil provider disables the OTel/Prometheus histogram
// recording but never the handlers themselves.
type Deps struct {
	Store       store.Store
	KV          *store.KV
	State       *state.Engine
	Policy      *policy.Engine
	Chain       *chain.Client
	Wallet      *chain.Wallet
	ExecEngine  *execution.Engine
	Risk        config.RiskConfig
	Metrics     *observability.MetricsProvider
	ServiceName string
}

func New(logger *observability.Logger, cfg config.ServerConfig, rateLimit config.RateLimitConfig, deps Deps) *Server {
	s := &Server{
		logger:     logger,
		cfg:        cfg,
		router:     mux.NewRouter(),
		store:      deps.Store,
		kv:         deps.KV,
		state:      deps.State,
		policy:     deps.Policy,
		chain:      deps.Chain,
		wallet:     deps.Wallet,
		execEngine: deps.ExecEngine,
		risk:       deps.Risk,
		metrics:    deps.Metrics,
	}

	s.setupRoutes()
	s.router.Use(middleware.Recovery(logger))
	s.router.Use(middleware.RateLimit(rateLimit))

	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "curvesentinel"
	}
	obsMiddleware := observability.NewObservabilityMiddleware(s.metrics, logger, observability.MiddlewareConfig{
		ServiceName:   serviceName,
		SlowThreshold: 500 * time.Millisecond,
	})
	s.router.Use(obsMiddleware.HTTPMiddleware)

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/policies", s.handleListPolicies).Methods(http.MethodGet)
	s.router.HandleFunc("/policies", s.handleCreatePolicy).Methods(http.MethodPost)
	s.router.HandleFunc("/policies/{id}", s.handleDeletePolicy).Methods(http.MethodDelete)

	s.router.HandleFunc("/wallets", s.handleListWallets).Methods(http.MethodGet)
	s.router.HandleFunc("/wallets/{walletId}/tokens", s.handleWalletTokens).Methods(http.MethodGet)

	s.router.HandleFunc("/positions", s.handleListPositions).Methods(http.MethodGet)
	s.router.HandleFunc("/positions", s.handleOpenPosition).Methods(http.MethodPost)
	s.router.HandleFunc("/positions/{id}", s.handleGetPosition).Methods(http.MethodGet)

	s.router.HandleFunc("/executions", s.handleListExecutions).Methods(http.MethodGet)
	s.router.HandleFunc("/executions/{id}", s.handleGetExecution).Methods(http.MethodGet)

	s.router.HandleFunc("/metrics/network", s.handleNetworkMetrics).Methods(http.MethodGet)
}

// Start begins serving HTTP traffic. CORS wraps the router rather than
// being a mux middleware so preflight requests never reach the rate
// limiter.
func (s *Server) Start(ctx context.Context) error {
	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      http.TimeoutHandler(handler, s.cfg.RequestTimeout, "request timed out"),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info(ctx, "starting http server", map[string]interface{}{"address": addr})

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error(ctx, "http server error", err)
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// Router exposes the underlying mux.Router for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}
