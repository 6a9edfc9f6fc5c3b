package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/erpsync/salesline-reconciler/internal/api/handlers"
	"github.com/erpsync/salesline-reconciler/internal/api/middleware"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/metrics"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	// WriteTimeout bounds a whole response; line downloads can be large.
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		WriteTimeout:   120 * time.Second,
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	svc        handlers.ReconciliationService
	metrics    *metrics.Recorder
}

// NewServer creates a new API server. A nil recorder disables /metrics.
func NewServer(cfg Config, svc handlers.ReconciliationService, recorder *metrics.Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:  cfg,
		router:  chi.NewRouter(),
		logger:  logger,
		svc:     svc,
		metrics: recorder,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	// CORS
	corsConfig := middleware.DefaultCORSConfig()
	if len(s.config.AllowedOrigins) > 0 {
		corsConfig.AllowedOrigins = s.config.AllowedOrigins
	}
	s.router.Use(middleware.CORS(corsConfig))

	// Request logging
	s.router.Use(middleware.Logging(s.logger))

	if s.metrics != nil {
		s.router.Use(middleware.Metrics(s.metrics))
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler()
	s.router.Get("/health", healthHandler.ServeHTTP)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		reconciliationHandler := handlers.NewReconciliationHandler(s.svc, s.logger)
		r.Get("/reconciliation/{salesId}", reconciliationHandler.Analyze)
		r.Get("/corrections/{salesId}", reconciliationHandler.Corrections)

		aggregatesHandler := handlers.NewAggregatesHandler(s.svc, s.logger)
		r.Get("/aggregates/channels", aggregatesHandler.Channels)
		r.Get("/aggregates/mismatches", aggregatesHandler.Mismatches)

		linesHandler := handlers.NewLinesHandler(s.svc, s.logger)
		r.Get("/lines", linesHandler.Download)

		queryLogsHandler := handlers.NewQueryLogsHandler(s.svc, s.logger)
		r.Get("/query-logs", queryLogsHandler.List)
		r.Post("/query-logs/{logId}/rollback", queryLogsHandler.Rollback)
		r.Post("/query/execute", queryLogsHandler.Execute)

		warehouseHandler := handlers.NewWarehouseHandler(s.svc, s.logger)
		r.Get("/warehouse/test", warehouseHandler.Test)

		erpHandler := handlers.NewERPHandler(s.svc, s.logger)
		r.Get("/odata/{salesId}", erpHandler.Search)
		r.Patch("/odata/{salesId}", erpHandler.Update)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	writeTimeout := s.config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
