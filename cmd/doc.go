// Package cmd provides the command-line interface for mcp-kube-audit.
//
// Subcommands:
//   - serve: Starts the MCP server (default when no subcommand is given)
//   - version: Displays the application version
//   - self-update: Updates the binary from GitHub releases
//
// Examples:
//
//	mcp-kube-audit serve --config clusters.yaml
//	mcp-kube-audit serve --transport sse --http-addr :8080 --sse-endpoint /sse
//	mcp-kube-audit serve --transport streamable-http --http-addr :9000 --http-endpoint /mcp
//
// The cluster configuration file binds each cluster name to an audit log
// provider; see package config for its format. Fan-out, logging and output
// limits are set with flags or their KUBE_AUDIT_* environment variables.
package cmd
