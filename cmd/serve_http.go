package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/mcp-kube-audit/internal/logging"
	"github.com/giantswarm/mcp-kube-audit/internal/server"
	"github.com/giantswarm/mcp-kube-audit/internal/server/middleware"
)

// HTTP server timeouts shared by the sse and streamable-http transports.
const (
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 120 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// runStreamableHTTPServer runs the server with Streamable HTTP transport
func runStreamableHTTPServer(mcpSrv *mcpserver.MCPServer, addr, endpoint string, ctx context.Context, enableHSTS bool, sc *server.ServerContext) error {
	mux := http.NewServeMux()

	// Create Streamable HTTP handler
	mcpHandler := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath(endpoint),
	)
	mux.Handle(endpoint, mcpHandler)

	registerOperationalEndpoints(mux, sc)

	sc.Logger().Info("streamable HTTP server starting",
		"addr", addr,
		"endpoint", endpoint,
		"health_endpoints", []string{"/healthz", "/readyz", "/healthz/detailed"})

	return serveHTTP(ctx, sc.Logger(), newHTTPServer(addr, wrapHandler(mux, enableHSTS, sc)), mcpHandler.Shutdown)
}

// newHTTPServer creates an HTTP server with security timeouts.
func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}

// registerOperationalEndpoints mounts health probes and, when enabled,
// the Prometheus scrape endpoint.
func registerOperationalEndpoints(mux *http.ServeMux, sc *server.ServerContext) {
	healthChecker := server.NewHealthChecker(sc)
	healthChecker.RegisterHealthEndpoints(mux)

	ip := sc.InstrumentationProvider()
	if ip.Enabled() {
		mux.Handle(ip.PrometheusEndpoint(), ip.Handler())
		sc.Logger().Info("metrics endpoint enabled", "endpoint", ip.PrometheusEndpoint())
	}
}

// wrapHandler applies the middleware shared by all HTTP transports.
func wrapHandler(h http.Handler, enableHSTS bool, sc *server.ServerContext) http.Handler {
	var recorder middleware.HTTPRecorder
	if m := sc.Metrics(); m != nil {
		recorder = m
	}
	return middleware.Chain(h,
		middleware.SecurityHeaders(enableHSTS),
		middleware.RequestLogger(sc.Logger()),
		middleware.HTTPMetrics(recorder),
	)
}

// serveHTTP runs httpServer until ctx is cancelled or the listener fails.
// drain is called before the listener is shut down to close MCP sessions.
func serveHTTP(ctx context.Context, logger *slog.Logger, httpServer *http.Server, drain func(context.Context) error) error {
	// Start server in goroutine
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	// Wait for either shutdown signal or server completion
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if drain != nil {
			if err := drain(shutdownCtx); err != nil {
				logger.Warn("error closing MCP sessions", logging.Err(err))
			}
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		logger.Info("HTTP server stopped normally")
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}
