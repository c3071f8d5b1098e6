// Package api visionfs REST API
//
// @title           visionfs REST API
// @version         1.0.0
// @description     Read-only REST access to indexed data files through their layouts.
// @host            localhost:8080
// @BasePath        /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in              header
// @name            X-API-Key
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// NewRouter wires every route of the server
func NewRouter(server *Server, metrics *Metrics, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(server.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(metrics.InstrumentAuthMiddleware(apiKeyMiddleware(server.config.APIKey)))

		// Health check
		r.Get("/health", metrics.InstrumentHandler("GET", "/api/v1/health", server.handleHealth))

		// Layouts
		r.Get("/files", metrics.InstrumentHandler("GET", "/api/v1/files", server.handleListFiles))
		r.Get("/files/{name}/definition", metrics.InstrumentHandler("GET", "/api/v1/files/{name}/definition", server.handleGetDefinition))

		// Records
		r.Get("/files/{name}/records", metrics.InstrumentHandler("GET", "/api/v1/files/{name}/records", server.handleListRecords))
		r.Get("/files/{name}/record", metrics.InstrumentHandler("GET", "/api/v1/files/{name}/record", server.handleGetRecord))
	})

	return r
}

// StartServer serves the API until ctx is cancelled, then shuts down
// gracefully
func StartServer(ctx context.Context, files FileProvider, config ServerConfig, metrics *Metrics, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	server := NewServer(files, config, metrics, logger)

	addr := net.JoinHostPort(config.Bind, strconv.Itoa(config.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(server, metrics, gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting visionfs REST API server", "addr", addr, "metrics", "/metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "server on %s failed", addr)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server shutdown failed")
	}
	return nil
}
