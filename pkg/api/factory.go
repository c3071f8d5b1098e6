// Package api provides factory implementations for dependency injection
package api

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultServerFactory is the default implementation of ServerFactory
type DefaultServerFactory struct {
	metrics  *Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// NewServerFactory creates a new server factory. Servers it starts report
// to metrics and expose gatherer on /metrics.
func NewServerFactory(metrics *Metrics, gatherer prometheus.Gatherer, logger *slog.Logger) ServerFactory {
	return &DefaultServerFactory{metrics: metrics, gatherer: gatherer, logger: logger}
}

// CreateServerStarter creates a server starter
func (f *DefaultServerFactory) CreateServerStarter() ServerStarter {
	return &DefaultServerStarter{metrics: f.metrics, gatherer: f.gatherer, logger: f.logger}
}

// DefaultServerStarter is the default implementation of ServerStarter
type DefaultServerStarter struct {
	metrics  *Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// StartServer starts the API server with the given configuration
func (s *DefaultServerStarter) StartServer(ctx context.Context, files FileProvider, config ServerConfig) error {
	return StartServer(ctx, files, config, s.metrics, s.gatherer, s.logger)
}
