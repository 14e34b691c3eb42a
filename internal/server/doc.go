// Package server holds the ServerContext shared by the MCP tool handlers
// and the HTTP health endpoints.
//
// A ServerContext owns the provider registry for its lifetime: Shutdown
// closes every provider and cancels the server context. Dependencies are
// injected with functional options:
//
//	sc, err := server.NewServerContext(ctx,
//		server.WithRegistry(registry),
//		server.WithLogger(logger),
//		server.WithInstrumentationProvider(provider),
//	)
//
// When no executor is supplied, NewServerContext builds a fan-out executor
// over the registry.
package server
