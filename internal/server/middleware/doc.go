// Package middleware provides HTTP middleware for the streamable HTTP
// transport: request metrics, security headers and request logging.
package middleware
