// Package logging provides structured logging utilities for mcp-kube-audit.
//
// It keeps attribute names consistent across the config loader, the provider
// registry, the fan-out executor and the MCP tool handlers, and it carries the
// sanitizers used before anything user- or backend-derived reaches a log line.
//
// # Usage Patterns
//
//	logger := logging.WithOperation(slog.Default(), "audit.query")
//	logger.Info("unit query finished",
//	    logging.Unit("cn-hangzhou"),
//	    logging.Provider("alibaba_sls"),
//	    logging.Status(logging.StatusSuccess))
//
// # Security Considerations
//
//   - Audit usernames are hashed before logging, so filters can be correlated
//     without writing the identity itself.
//   - Backend endpoints have IP addresses redacted.
//   - Access keys are reduced to a length marker by RedactSecret.
package logging
