package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-kube-audit/internal/config"
	"github.com/giantswarm/mcp-kube-audit/internal/fanout"
	"github.com/giantswarm/mcp-kube-audit/internal/instrumentation"
	"github.com/giantswarm/mcp-kube-audit/internal/logging"
	"github.com/giantswarm/mcp-kube-audit/internal/provider"
	"github.com/giantswarm/mcp-kube-audit/internal/server"
	"github.com/giantswarm/mcp-kube-audit/internal/tools/auditlog"
	"github.com/giantswarm/mcp-kube-audit/internal/tools/output"

	// Provider implementations register themselves with the factory table.
	_ "github.com/giantswarm/mcp-kube-audit/internal/provider/kubeevents"
	_ "github.com/giantswarm/mcp-kube-audit/internal/provider/loki"
	_ "github.com/giantswarm/mcp-kube-audit/internal/provider/sls"
)

// Transport type constants for the MCP server.
const (
	transportStdio          = "stdio"
	transportSSE            = "sse"
	transportStreamableHTTP = "streamable-http"
)

// envValueTrue is the string value used to enable boolean environment variables.
const envValueTrue = "true"

// warnInvalidEnv reports an environment value that could not be parsed.
// The default logger writes to stderr, so this is safe under stdio.
func warnInvalidEnv(envName, value string, err error) {
	slog.Warn("ignoring invalid environment value", "env", envName, "value", value, logging.Err(err))
}

// parseDurationEnv parses a duration from an environment variable value.
// Returns the parsed duration and true if successful, or zero and false if parsing fails.
// Logs a warning if the value is present but invalid.
func parseDurationEnv(value, envName string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		warnInvalidEnv(envName, value, err)
		return 0, false
	}
	return d, true
}

// parseIntEnv parses an integer from an environment variable value.
// Returns the parsed int and true if successful, or zero and false if parsing fails.
// Logs a warning if the value is present but invalid.
func parseIntEnv(value, envName string) (int, bool) {
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		warnInvalidEnv(envName, value, err)
		return 0, false
	}
	return n, true
}

// newServeCmd creates the Cobra command for starting the MCP server.
func newServeCmd() *cobra.Command {
	config := ServeConfig{
		Output: server.NewDefaultConfig().Output,
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP Kubernetes audit log server",
		Long: `Start the MCP Kubernetes audit log server to query audit events from
one or more clusters via the Model Context Protocol.

Clusters are declared in a YAML configuration file (--config), each bound to
an audit log provider (alibaba_sls, loki or kubernetes_events). Queries can
target a single cluster or fan out over several; a failing cluster is
reported alongside the results of the others.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - sse: Server-Sent Events over HTTP
  - streamable-http: Streamable HTTP transport`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadServeEnvVars(cmd, &config)
			if err := config.Validate(); err != nil {
				return err
			}
			return runServe(config)
		},
	}

	// Cluster configuration
	cmd.Flags().StringVar(&config.ConfigPath, "config", defaultConfigPath, "Path to the cluster configuration file (can also be set via KUBE_AUDIT_CONFIG env var)")

	// Fan-out flags
	cmd.Flags().DurationVar(&config.UnitTimeout, "unit-timeout", defaultUnitTimeout, "Timeout for each cluster's backend query (can also be set via KUBE_AUDIT_UNIT_TIMEOUT env var)")
	cmd.Flags().IntVar(&config.MaxConcurrency, "max-concurrency", 0, "Maximum clusters queried in parallel, 0 for no limit (can also be set via KUBE_AUDIT_MAX_CONCURRENCY env var)")
	cmd.Flags().BoolVar(&config.FailOnAllUnitsFailed, "fail-on-all-units-failed", false, "Return a tool error when every queried cluster fails (default: false)")

	// Output flags
	cmd.Flags().IntVar(&config.Output.MaxResponseBytes, "max-response-bytes", output.DefaultMaxResponseBytes, "Maximum size of returned entries in bytes (can also be set via KUBE_AUDIT_MAX_RESPONSE_BYTES env var)")
	cmd.Flags().BoolVar(&config.Output.SlimOutput, "slim-output", true, "Drop verbose metadata such as managedFields from embedded objects")
	cmd.Flags().BoolVar(&config.Output.MaskSecrets, "mask-secrets", true, "Redact Secret data captured in request and response objects")

	// Logging flags
	cmd.Flags().StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn or error")
	cmd.Flags().StringVar(&config.LogFormat, "log-format", logging.FormatText, "Log format: text or json")

	// Transport flags
	cmd.Flags().StringVar(&config.Transport, "transport", transportStdio, "Transport type: stdio, sse, or streamable-http")
	cmd.Flags().StringVar(&config.HTTPAddr, "http-addr", ":8080", "HTTP server address (for sse and streamable-http transports)")
	cmd.Flags().StringVar(&config.SSEEndpoint, "sse-endpoint", "/sse", "SSE endpoint path (for sse transport)")
	cmd.Flags().StringVar(&config.MessageEndpoint, "message-endpoint", "/message", "Message endpoint path (for sse transport)")
	cmd.Flags().StringVar(&config.HTTPEndpoint, "http-endpoint", "/mcp", "HTTP endpoint path (for streamable-http transport)")
	cmd.Flags().BoolVar(&config.EnableHSTS, "enable-hsts", false, "Send Strict-Transport-Security headers (can also be set via ENABLE_HSTS=true)")

	return cmd
}

// runServe contains the main server logic with support for multiple transports
func runServe(serveConfig ServeConfig) error {
	// Logs go to stderr so they never mix with the stdio transport.
	logger, err := logging.NewLogger(serveConfig.LogLevel, serveConfig.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Configuration errors are fatal and reported before anything is started.
	clusterConfig, err := config.LoadFile(serveConfig.ConfigPath, provider.DefaultTable())
	if err != nil {
		return fmt.Errorf("failed to load cluster configuration from %s: %w", serveConfig.ConfigPath, err)
	}

	// Setup graceful shutdown - listen for both SIGINT and SIGTERM
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize OpenTelemetry instrumentation provider
	instrumentationConfig := instrumentation.DefaultConfig()
	instrumentationConfig.ServiceVersion = rootCmd.Version
	instrumentationProvider, err := instrumentation.NewProvider(shutdownCtx, instrumentationConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if shutdownErr := instrumentationProvider.Shutdown(context.Background()); shutdownErr != nil {
			logger.Error("Error during instrumentation shutdown", logging.Err(shutdownErr))
		}
	}()

	if instrumentationProvider.Enabled() {
		logger.Info("OpenTelemetry instrumentation enabled",
			"metrics", instrumentationConfig.MetricsExporter,
			"tracing", instrumentationConfig.TracingExporter)
	}

	registry, err := provider.Open(shutdownCtx, clusterConfig,
		provider.WithDependencies(provider.Dependencies{
			Logger:       logger,
			CacheMetrics: instrumentationProvider.Metrics(),
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to open audit log providers: %w", err)
	}

	executor := fanout.NewExecutor(registry,
		fanout.WithUnitTimeout(serveConfig.UnitTimeout),
		fanout.WithMaxConcurrency(serveConfig.MaxConcurrency),
		fanout.WithFailOnAllUnitsFailed(serveConfig.FailOnAllUnitsFailed),
		fanout.WithLogger(logger),
		fanout.WithMetrics(instrumentationProvider.Metrics()),
	)

	// The server context owns the registry from here on.
	serverContext, err := server.NewServerContext(shutdownCtx,
		server.WithRegistry(registry),
		server.WithExecutor(executor),
		server.WithLogger(logger),
		server.WithVersion(rootCmd.Version),
		server.WithOutputConfig(serveConfig.Output),
		server.WithInstrumentationProvider(instrumentationProvider),
	)
	if err != nil {
		_ = registry.Close()
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Error("Error during server context shutdown", logging.Err(err))
		}
	}()

	logger.Info("Audit log providers ready",
		"clusters", len(registry.AllUnitIDs()),
		"default_cluster", registry.DefaultCluster())

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer(serverContext.Config().ServerName, rootCmd.Version,
		mcpserver.WithToolCapabilities(true),
	)

	if err := auditlog.RegisterAuditTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register audit tools: %w", err)
	}

	// Start the appropriate server based on transport type
	switch serveConfig.Transport {
	case transportStdio:
		return runStdioServer(mcpSrv)
	case transportSSE:
		logger.Info("Starting MCP server", "transport", serveConfig.Transport)
		return runSSEServer(mcpSrv, serveConfig.HTTPAddr, serveConfig.SSEEndpoint, serveConfig.MessageEndpoint, shutdownCtx, serverContext)
	case transportStreamableHTTP:
		logger.Info("Starting MCP server", "transport", serveConfig.Transport)
		return runStreamableHTTPServer(mcpSrv, serveConfig.HTTPAddr, serveConfig.HTTPEndpoint, shutdownCtx, serveConfig.EnableHSTS, serverContext)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, sse, streamable-http)", serveConfig.Transport)
	}
}
