// Package http provides the HTTP server and API surface for vidmorph.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vidmorph/vidmorph/internal/config"
	"github.com/vidmorph/vidmorph/internal/http/handlers"
	"github.com/vidmorph/vidmorph/internal/http/middleware"
	"github.com/vidmorph/vidmorph/internal/service/convert"
	"github.com/vidmorph/vidmorph/internal/storage"
)

// Server is the HTTP server: chi router for streaming endpoints, huma API
// for the JSON surface.
type Server struct {
	config     config.ServerConfig
	router     *chi.Mux
	api        huma.API
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the router, middleware chain and API shell. Handlers are
// registered separately via RegisterHandlers.
func NewServer(cfg config.ServerConfig, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.NewLoggingMiddleware(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.CORSOrigins))

	// SSE responses must reach the client unbuffered; everything else is
	// gzip-compressed.
	router.Use(middleware.SkipCompressionForSSE(chimiddleware.Compress(5)))

	humaConfig := huma.DefaultConfig("vidmorph API", version)
	humaConfig.Info.Description = "Video file conversion API"

	api := humachi.New(router, humaConfig)

	return &Server{
		config: cfg,
		router: router,
		api:    api,
		logger: logger,
	}
}

// RegisterHandlers wires every endpoint of the service onto the server.
func (s *Server) RegisterHandlers(svc *convert.Service, ws *storage.Workspace, maxUploadSize int64, version string) {
	handlers.NewJobHandler(svc).Register(s.api)
	handlers.NewStatsHandler(svc).Register(s.api)
	handlers.NewHealthHandler(version, ws).Register(s.api)

	handlers.NewConvertHandler(svc, maxUploadSize, s.logger).RegisterRoutes(s.router)
	handlers.NewEventsHandler(svc, s.logger).RegisterRoutes(s.router)
	handlers.NewFilesHandler(svc, ws, s.logger).RegisterRoutes(s.router)

	s.router.Handle("/metrics", promhttp.Handler())
}

// API returns the huma API for registering additional operations.
func (s *Server) API() huma.API {
	return s.api
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the server until it is shut down.
func (s *Server) Start() error {
	addr := s.config.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout.Duration(),
		WriteTimeout: s.config.WriteTimeout.Duration(),
		IdleTimeout:  s.config.IdleTimeout.Duration(),
	}

	s.logger.Info("starting HTTP server", slog.String("address", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// Shutdown gracefully drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("shutting down HTTP server",
		slog.Duration("timeout", s.config.ShutdownTimeout.Duration()),
	)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout.Duration())
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// ListenAndServe starts the server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}
