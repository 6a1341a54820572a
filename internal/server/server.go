// Package server provides the HTTP server setup and wiring.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/fhevmkit/internal/binding"
	"github.com/pendergraft/fhevmkit/internal/chains"
	"github.com/pendergraft/fhevmkit/internal/config"
	"github.com/pendergraft/fhevmkit/internal/env"
	"github.com/pendergraft/fhevmkit/internal/instances/domain"
	"github.com/pendergraft/fhevmkit/internal/instances/transport"
	"github.com/pendergraft/fhevmkit/internal/middleware/logging"
	"github.com/pendergraft/fhevmkit/internal/middleware/ratelimit"
	"github.com/pendergraft/fhevmkit/internal/observability/metrics"
	"github.com/pendergraft/fhevmkit/internal/validation"
)

// Server is the HTTP server around one long-lived binding
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	router  *chi.Mux
	binding *binding.Binding
	limiter *ratelimit.RateLimiter
}

// NewBuilder assembles the instance builder from the selected environment
// capabilities, wrapped with logging and metrics.
func NewBuilder(cfg config.ChainConfig, caps *env.Capabilities, logger *slog.Logger) domain.Builder {
	svc := domain.NewServiceFor(caps,
		domain.WithLocalClients(cfg.LocalClients),
		domain.WithStrictRelayerMetadata(cfg.StrictRelayerMetadata),
		domain.WithLogger(logger),
	)
	return domain.LoggingMiddleware(logger)(svc)
}

// New creates a server whose binding follows cfg.Chain. The binding starts
// building immediately when RPC_URL is set.
func New(cfg *config.Config, builder domain.Builder, logger *slog.Logger) (*Server, error) {
	mockChains, err := chains.ParseMockChains(cfg.Chain.MockChains)
	if err != nil {
		return nil, fmt.Errorf("parsing MOCK_CHAINS: %w", err)
	}
	if err := validation.ValidateMockChains(mockChains); err != nil {
		return nil, fmt.Errorf("invalid MOCK_CHAINS: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		router: chi.NewRouter(),
	}

	s.binding = binding.New(builder, binding.Options{
		MockChains: mockChains,
		OnBuildStatus: func(st domain.Status) {
			logger.Debug("build status", "status", st)
		},
		Logger: logger,
	})
	s.binding.Update(initialConfig(cfg.Chain))

	if cfg.RateLimit.Enabled {
		s.limiter = ratelimit.New(ratelimit.Config{
			Enabled:        true,
			RequestsPerMin: cfg.RateLimit.RequestsPerMin,
			BurstSize:      cfg.RateLimit.BurstSize,
			CleanupMinutes: cfg.RateLimit.CleanupMinutes,
		})
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func initialConfig(cfg config.ChainConfig) binding.Config {
	bc := binding.Config{Enabled: cfg.RPCURL != ""}
	if cfg.RPCURL != "" {
		bc.Endpoint = chains.URLEndpoint(cfg.RPCURL)
	}
	if cfg.ChainID != 0 {
		id := cfg.ChainID
		bc.ChainID = &id
	}
	return bc
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Binding returns the binding the server exposes
func (s *Server) Binding() *binding.Binding {
	return s.binding
}

// Close cancels any in-flight build and stops the rate limiter
func (s *Server) Close() {
	s.binding.Close()
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func (s *Server) setupMiddleware() {
	// 1. Client address (only when a trusted proxy sets the headers)
	if s.cfg.Proxy.TrustProxy {
		s.router.Use(middleware.RealIP)
	}

	// 2. Standard middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)

	// 3. CORS
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes() {
	// Health checks
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Handle("/metrics", metrics.Handler())

	instanceHandler := transport.NewHandler(s.binding)

	s.router.Route("/api/v1/instance", func(r chi.Router) {
		instanceHandler.RegisterReadRoutes(r)

		// Writes restart builds and are rate limited
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.Middleware())
			}
			instanceHandler.RegisterWriteRoutes(r)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports the binding status alongside liveness. A failed build
// does not make the server unready; clients can still reconfigure it.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"instance": string(s.binding.State().Status),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
