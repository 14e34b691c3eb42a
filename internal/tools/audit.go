// Package tools provides shared utilities and types for MCP tool implementations.
package tools

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/giantswarm/mcp-kube-audit/internal/instrumentation"
	"github.com/giantswarm/mcp-kube-audit/internal/logging"
	"github.com/giantswarm/mcp-kube-audit/internal/server"
)

// ToolHandler is the signature for MCP tool handler functions that take ServerContext.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error)

// WrapWithAuditLogging wraps a tool handler so that every invocation:
//   - runs inside a "tool.<name>" span carrying the cluster arguments
//   - is logged with its status and duration
//   - is counted in the mcp_tool_calls_total metric
//
// MCP tool errors are returned in the result rather than as Go errors, so a
// result with IsError set is recorded with the error status.
func WrapWithAuditLogging(
	toolName string,
	handler ToolHandler,
	sc *server.ServerContext,
) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		clusters := ClusterTargets(args)

		ctx, span := instrumentation.StartToolSpan(ctx, toolName, spanAttributes(args, clusters)...)
		defer span.End()

		start := time.Now()
		result, err := handler(ctx, request, sc)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		var message string
		switch {
		case err != nil:
			status = instrumentation.StatusError
			message = err.Error()
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			status = instrumentation.StatusError
			message = resultText(result)
			span.SetStatus(codes.Error, message)
		default:
			instrumentation.SetSpanSuccess(span)
		}

		sc.Metrics().RecordToolCall(ctx, toolName, status, duration)
		logInvocation(ctx, sc.Logger(), toolName, clusters, status, message, duration)

		return result, err
	}
}

func spanAttributes(args map[string]any, clusters []string) []attribute.KeyValue {
	b := instrumentation.NewSpanAttributeBuilder().
		WithNamespace(StringArg(args, "namespace")).
		WithResourceTypes(StringListArg(args, "resource_types"))
	if len(clusters) > 0 {
		b.WithCluster(strings.Join(clusters, ","))
	}
	return b.Build()
}

func logInvocation(ctx context.Context, logger *slog.Logger, toolName string, clusters []string, status, message string, duration time.Duration) {
	attrs := []slog.Attr{
		logging.Operation("tool_call"),
		slog.String(logging.KeyTool, toolName),
		logging.Status(status),
		logging.Duration(duration),
	}
	if len(clusters) > 0 {
		attrs = append(attrs, slog.Any(logging.KeyCluster, clusters))
	}
	if traceID := instrumentation.GetTraceID(ctx); traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if message != "" {
		attrs = append(attrs, slog.String(logging.KeyError, message))
	}

	level := slog.LevelInfo
	if status != instrumentation.StatusSuccess {
		level = slog.LevelWarn
	}
	logger.LogAttrs(ctx, level, "tool invocation", attrs...)
}

// resultText returns the first text content of result, if any.
func resultText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
