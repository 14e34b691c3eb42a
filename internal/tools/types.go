package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-kube-audit/internal/audit"
	"github.com/giantswarm/mcp-kube-audit/internal/fanout"
)

// EmptyRequest represents a request with no parameters.
// Used by tools that don't require any input arguments.
type EmptyRequest struct{}

// JSONResult encodes v as indented JSON text content.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// FormatQueryError turns a query failure into a message for MCP clients.
// Typed audit errors provide their own client-safe text.
func FormatQueryError(err error) string {
	if err == nil {
		return ""
	}

	var filterErr *audit.FilterError
	if errors.As(err, &filterErr) {
		return fmt.Sprintf("Invalid query: %s", filterErr.Error())
	}

	switch {
	case errors.Is(err, fanout.ErrAllUnitsFailed):
		return "All requested clusters failed to answer; see 'errors' for details"
	case errors.Is(err, audit.ErrUnknownCluster), errors.Is(err, audit.ErrProviderQuery):
		return audit.UserFacingMessage(err)
	}

	return fmt.Sprintf("Audit query failed: %v", err)
}
