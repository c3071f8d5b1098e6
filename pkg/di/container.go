// Package di provides dependency injection container
package di

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/ssargent/visionfs/pkg/api" //nolint:depguard
	"github.com/ssargent/visionfs/pkg/config"
	"github.com/ssargent/visionfs/pkg/engine"
	"github.com/ssargent/visionfs/pkg/engine/lsm"
	"github.com/ssargent/visionfs/pkg/vision"
	"github.com/ssargent/visionfs/pkg/xfd"
)

// Container holds all the dependencies for the application
type Container struct {
	config   *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *api.Metrics

	engine        engine.Engine
	fileSystem    *vision.FileSystem
	serverFactory api.ServerFactory
}

// NewContainer creates a new dependency injection container with default
// configuration and a Pebble backed engine
func NewContainer() *Container {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := api.NewMetrics(registry)
	logger := slog.Default()

	return &Container{
		config:        config.DefaultConfig(),
		logger:        logger,
		registry:      registry,
		metrics:       metrics,
		serverFactory: api.NewServerFactory(metrics, registry, logger),
	}
}

// SetConfig replaces the configuration; call before FileSystem
func (c *Container) SetConfig(cfg *config.Config) {
	c.config = cfg
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// SetLogger replaces the logger used by every component built afterwards
func (c *Container) SetLogger(logger *slog.Logger) {
	c.logger = logger
	c.serverFactory = api.NewServerFactory(c.metrics, c.registry, logger)
}

// GetLogger returns the logger
func (c *Container) GetLogger() *slog.Logger {
	return c.logger
}

// SetEngine overrides the engine (for testing)
func (c *Container) SetEngine(eng engine.Engine) {
	c.engine = eng
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}

// GetRegistry returns the Prometheus registry served on /metrics
func (c *Container) GetRegistry() *prometheus.Registry {
	return c.registry
}

// FileSystem builds and initializes the file system on first use
func (c *Container) FileSystem() (*vision.FileSystem, error) {
	if c.fileSystem != nil {
		return c.fileSystem, nil
	}
	if err := c.config.Validate(); err != nil {
		return nil, err
	}

	eng := c.engine
	if eng == nil {
		eng = lsm.New(c.logger)
	}
	gate := engine.NewGate(c.config.Lock.Path, c.config.Lock.Timeout)
	rt := engine.NewRuntime(eng, gate, engine.WithObserver(c.metrics))

	fs := vision.NewFileSystem(c.config, rt, xfd.NewRegistry(c.logger), c.logger)
	if err := fs.Initialize(); err != nil {
		_ = fs.Close()
		return nil, errors.Wrap(err, "failed to initialize file system")
	}
	c.fileSystem = fs
	return fs, nil
}

// Close releases the file system, if one was built
func (c *Container) Close() error {
	if c.fileSystem == nil {
		return nil
	}
	err := c.fileSystem.Close()
	c.fileSystem = nil
	return err
}
