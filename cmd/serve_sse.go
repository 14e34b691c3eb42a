package cmd

import (
	"context"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/mcp-kube-audit/internal/server"
)

// runSSEServer runs the server with SSE transport
func runSSEServer(mcpSrv *mcpserver.MCPServer, addr, sseEndpoint, messageEndpoint string, ctx context.Context, sc *server.ServerContext) error {
	// Create SSE server with custom endpoints
	sseServer := mcpserver.NewSSEServer(mcpSrv,
		mcpserver.WithSSEEndpoint(sseEndpoint),
		mcpserver.WithMessageEndpoint(messageEndpoint),
	)

	mux := http.NewServeMux()
	mux.Handle(sseEndpoint, sseServer.SSEHandler())
	mux.Handle(messageEndpoint, sseServer.MessageHandler())
	registerOperationalEndpoints(mux, sc)

	sc.Logger().Info("SSE server starting",
		"addr", addr,
		"sse_endpoint", sseEndpoint,
		"message_endpoint", messageEndpoint)

	// SSE streams are long-lived; the write timeout would cut them off.
	httpServer := newHTTPServer(addr, wrapHandler(mux, false, sc))
	httpServer.WriteTimeout = 0

	return serveHTTP(ctx, sc.Logger(), httpServer, sseServer.Shutdown)
}
