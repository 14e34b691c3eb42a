package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-kube-audit/internal/audit"
	"github.com/giantswarm/mcp-kube-audit/internal/fanout"
	"github.com/giantswarm/mcp-kube-audit/internal/server"
	"github.com/giantswarm/mcp-kube-audit/internal/tools"
	"github.com/giantswarm/mcp-kube-audit/internal/tools/output"
)

// QueryResponse is the query_audit_log payload: the merged result, the
// filter that was actually applied and an optional truncation notice.
type QueryResponse struct {
	*audit.AggregateResult
	Filter     audit.QueryFilter         `json:"filter"`
	Truncation *output.TruncationWarning `json:"truncation,omitempty"`
}

// ClusterEntry is one element of the list_clusters payload.
type ClusterEntry struct {
	Name        string   `json:"name"`
	Provider    string   `json:"provider"`
	Description string   `json:"description"`
	Alias       []string `json:"alias"`
	Disabled    bool     `json:"disabled"`
}

// ClustersResponse is the list_clusters payload.
type ClustersResponse struct {
	DefaultCluster string         `json:"default_cluster"`
	Clusters       []ClusterEntry `json:"clusters"`
}

// buildFilter maps tool arguments onto a QueryFilter. Verbs and resource
// types are normalized; the limit is clamped to 1..MaxLimit.
func buildFilter(args map[string]any) (audit.QueryFilter, error) {
	limit, err := tools.IntArg(args, "limit", audit.DefaultLimit)
	if err != nil {
		return audit.QueryFilter{}, &audit.FilterError{Field: "limit", Reason: err.Error()}
	}

	return audit.QueryFilter{
		TargetUnits:   tools.ClusterTargets(args),
		Namespace:     tools.StringArg(args, "namespace"),
		Verbs:         audit.NormalizeVerbs(tools.StringListArg(args, "verbs")),
		ResourceTypes: audit.NormalizeResourceTypes(tools.StringListArg(args, "resource_types")),
		ResourceName:  tools.StringArg(args, "resource_name"),
		User:          tools.StringArg(args, "user"),
		StartTime:     tools.StringArg(args, "start_time"),
		EndTime:       tools.StringArg(args, "end_time"),
		Limit:         audit.ClampLimit(limit),
	}, nil
}

// getOutputProcessor creates an output processor from server context configuration.
func getOutputProcessor(sc *server.ServerContext) *output.Processor {
	outputCfg := sc.OutputConfig()
	cfg := &output.Config{
		MaxResponseBytes: outputCfg.MaxResponseBytes,
		SlimOutput:       outputCfg.SlimOutput,
		MaskSecrets:      outputCfg.MaskSecrets,
	}
	return output.NewProcessor(cfg, sc.Logger())
}

// handleQueryAuditLog fans the query out to the requested clusters and
// returns the merged entries.
func handleQueryAuditLog(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	filter, err := buildFilter(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(tools.FormatQueryError(err)), nil
	}

	agg, err := sc.Executor().Execute(ctx, filter)
	if agg == nil {
		return mcp.NewToolResultError(tools.FormatQueryError(err)), nil
	}

	response := QueryResponse{
		AggregateResult: agg,
		Filter:          filter,
		Truncation:      getOutputProcessor(sc).Process(agg),
	}

	if err != nil && errors.Is(err, fanout.ErrAllUnitsFailed) {
		jsonData, mErr := json.MarshalIndent(response, "", "  ")
		if mErr != nil {
			return mcp.NewToolResultError(tools.FormatQueryError(err)), nil
		}
		result := mcp.NewToolResultError(tools.FormatQueryError(err))
		result.Content = append(result.Content, mcp.NewTextContent(string(jsonData)))
		return result, nil
	}

	return tools.JSONResult(response)
}

// handleListClusters describes the configured clusters.
func handleListClusters(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	registry := sc.Registry()

	infos := registry.Clusters()
	response := ClustersResponse{
		DefaultCluster: registry.DefaultCluster(),
		Clusters:       make([]ClusterEntry, 0, len(infos)),
	}
	for _, info := range infos {
		description := info.Description
		if description == "" {
			description = fmt.Sprintf("Cluster %s", info.Name)
		}
		response.Clusters = append(response.Clusters, ClusterEntry{
			Name:        info.Name,
			Provider:    info.Provider,
			Description: description,
			Alias:       []string{},
		})
	}

	return tools.JSONResult(response)
}

// handleListResourceTypes lists the resource types and aliases understood
// by the resource_types filter.
func handleListResourceTypes(_ context.Context, _ mcp.CallToolRequest, _ *server.ServerContext) (*mcp.CallToolResult, error) {
	return tools.JSONResult(map[string]any{
		"resource_types": audit.CommonResourceTypes(),
	})
}
