package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/giantswarm/mcp-kube-audit/internal/fanout"
	"github.com/giantswarm/mcp-kube-audit/internal/instrumentation"
	"github.com/giantswarm/mcp-kube-audit/internal/provider"
)

// ServerContext holds the dependencies shared by every tool handler and
// owns their lifecycle.
type ServerContext struct {
	registry *provider.Registry
	executor *fanout.Executor
	logger   *slog.Logger
	config   *Config

	instrumentationProvider *instrumentation.Provider

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	shutdown bool
}

// Config holds the server identity advertised to MCP clients and the
// settings shared by tool handlers.
type Config struct {
	ServerName string       `json:"serverName"`
	Version    string       `json:"version"`
	Output     OutputConfig `json:"output"`
}

// OutputConfig controls post-processing of audit entries returned by tools.
type OutputConfig struct {
	// MaxResponseBytes bounds the encoded size of returned entries.
	MaxResponseBytes int `json:"maxResponseBytes"`

	// SlimOutput drops verbose metadata from embedded objects.
	SlimOutput bool `json:"slimOutput"`

	// MaskSecrets redacts Secret payloads captured in request and response objects.
	MaskSecrets bool `json:"maskSecrets"`
}

// NewDefaultConfig creates a configuration with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		ServerName: "mcp-kube-audit",
		Version:    "dev",
		Output: OutputConfig{
			MaxResponseBytes: 512 * 1024,
			SlimOutput:       true,
			MaskSecrets:      true,
		},
	}
}

// NewServerContext creates a new ServerContext. A registry is required;
// when no executor is supplied one is built over the registry, metered
// through the instrumentation provider if one is set.
func NewServerContext(ctx context.Context, opts ...Option) (*ServerContext, error) {
	serverCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:    serverCtx,
		cancel: cancel,
		config: NewDefaultConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(sc); err != nil {
			cancel()
			return nil, err
		}
	}

	if err := sc.validate(); err != nil {
		cancel()
		return nil, err
	}

	if sc.executor == nil {
		execOpts := []fanout.Option{fanout.WithLogger(sc.logger)}
		if m := sc.instrumentationProvider.Metrics(); m != nil {
			execOpts = append(execOpts, fanout.WithMetrics(m))
		}
		sc.executor = fanout.NewExecutor(sc.registry, execOpts...)
	}

	return sc, nil
}

// Context returns the server context for cancellation and deadlines.
func (sc *ServerContext) Context() context.Context {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.ctx
}

// Registry returns the provider registry.
func (sc *ServerContext) Registry() *provider.Registry {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.registry
}

// Executor returns the fan-out executor.
func (sc *ServerContext) Executor() *fanout.Executor {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.executor
}

// Logger returns the logger.
func (sc *ServerContext) Logger() *slog.Logger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.logger
}

// Config returns the server configuration.
func (sc *ServerContext) Config() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config
}

// OutputConfig returns the output settings for tool handlers.
func (sc *ServerContext) OutputConfig() OutputConfig {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Output
}

// InstrumentationProvider returns the instrumentation provider, which may be nil.
func (sc *ServerContext) InstrumentationProvider() *instrumentation.Provider {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.instrumentationProvider
}

// Metrics returns the metrics recorder, or nil when instrumentation is not set.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.InstrumentationProvider().Metrics()
}

// Shutdown closes the provider registry and cancels the server context.
// It is safe to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.logger.Info("Shutting down server context")

	var errs []error
	if sc.registry != nil {
		if err := sc.registry.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if sc.cancel != nil {
		sc.cancel()
	}
	sc.shutdown = true

	sc.logger.Info("Server context shutdown complete")
	return errors.Join(errs...)
}

// IsShutdown returns true if the server context has been shutdown.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

func (sc *ServerContext) validate() error {
	if sc.registry == nil {
		return ErrMissingRegistry
	}
	if sc.logger == nil {
		return ErrMissingLogger
	}
	if sc.config == nil {
		return ErrMissingConfig
	}
	return nil
}
