package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/consortia-finance/tally/internal/alert"
	"github.com/consortia-finance/tally/internal/commission"
	"github.com/consortia-finance/tally/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, service *commission.Service, repo domain.Repository, cache domain.Cache, alerts *alert.Engine, version string) *Server {
	handler := NewHandler(service, repo, cache, alerts, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(MetricsMiddleware)      // Prometheus counters
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Operational endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", MetricsHandler())

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Commission configuration
		r.Post("/commissions", handler.CreateCommission)
		r.Get("/commissions", handler.ListCommissions)
		r.Get("/commissions/{id}", handler.GetCommission)
		r.Put("/commissions/{id}", handler.UpdateCommission)
		r.Delete("/commissions/{id}", handler.DeleteCommission)
		r.Post("/commissions/validate", handler.ValidateCommission)

		// Resolution and settlement
		r.Post("/resolve", handler.Resolve)
		r.Post("/settle", handler.Settle)

		// Impact simulation
		r.Post("/simulate", handler.Simulate)
		r.Post("/simulate/seller", handler.SimulateSeller)

		// Dashboard aggregates
		r.Get("/dashboard", handler.Dashboard)

		// Alert rule management
		r.Get("/alerts/rules", handler.ListAlertRules)
		r.Post("/alerts/rules", handler.CreateAlertRule)
		r.Delete("/alerts/rules/{id}", handler.DeleteAlertRule)
		r.Post("/alerts/rules/reload", handler.ReloadAlertRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
