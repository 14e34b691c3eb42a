package auditlog

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/mcp-kube-audit/internal/server"
	"github.com/giantswarm/mcp-kube-audit/internal/tools"
)

// Tool names.
const (
	ToolQueryAuditLog     = "query_audit_log"
	ToolListClusters      = "list_clusters"
	ToolListResourceTypes = "list_common_resource_types"
)

const (
	queryAuditLogOverview  = "Query Kubernetes audit logs across one or more configured clusters."
	queryAuditLogUsageHint = `

Function description:
- Supports ISO 8601 timestamps and relative start times (30m, 1h, 24h, 7d, 2w).
- Supports suffix wildcards for namespace, resource name and user ("kube*", "system:*").
- Supports multiple values for verbs and resource types; short resource names (deploy, svc, cm) are accepted.
- cluster_names queries several clusters in parallel; a failing cluster is reported in 'errors' and does not hide the others.

Usage suggestions:
- Call list_clusters to see available clusters and the default one.
- Call list_common_resource_types when unsure which resource type to pass.
- By default the last 24 hours are queried and at most 10 records per cluster are returned (max 100).`
)

// RegisterAuditTools registers the audit log tools with the MCP server.
func RegisterAuditTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// query_audit_log tool
	queryOpts := []mcp.ToolOption{
		mcp.WithDescription(queryAuditLogOverview + queryAuditLogUsageHint),
		mcp.WithReadOnlyHintAnnotation(true),
	}
	queryOpts = append(queryOpts, tools.AddClusterParams()...)
	queryOpts = append(queryOpts,
		mcp.WithString("namespace",
			mcp.Description(`Match by namespace (optional). Exact ("kube-system") or suffix wildcard ("app-*")`),
		),
		mcp.WithArray("verbs",
			mcp.Description(`Filter by verbs (optional), e.g. ["get", "list", "create", "update", "patch", "delete", "watch"]. A comma-separated string is also accepted`),
		),
		mcp.WithArray("resource_types",
			mcp.Description(`Filter by resource types (optional), full or short names: pods(pod), services(svc), configmaps(cm), secrets, deployments(deploy), statefulsets(sts), daemonsets(ds), rolebindings, ...`),
		),
		mcp.WithString("resource_name",
			mcp.Description(`Match by resource name (optional). Exact ("nginx") or suffix wildcard ("nginx-*")`),
		),
		mcp.WithString("user",
			mcp.Description(`Match by user name (optional). Exact ("kubernetes-admin") or suffix wildcard ("system:*")`),
		),
		mcp.WithString("start_time",
			mcp.Description(`Query start (optional): ISO 8601 ("2024-01-01T10:00:00Z") or relative ("30m", "1h", "24h", "7d"). Default: 24h`),
		),
		mcp.WithString("end_time",
			mcp.Description(`Query end (optional): ISO 8601. Default: now`),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum records per cluster (optional, default: 10, maximum: 100)"),
		),
	)
	queryTool := mcp.NewTool(ToolQueryAuditLog, queryOpts...)

	s.AddTool(queryTool, tools.WrapWithAuditLogging(ToolQueryAuditLog, handleQueryAuditLog, sc))

	// list_clusters tool
	listClustersTool := mcp.NewTool(ToolListClusters,
		mcp.WithDescription("List all configured clusters, their audit log providers and the default cluster"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(listClustersTool, tools.WrapWithAuditLogging(ToolListClusters, handleListClusters, sc))

	// list_common_resource_types tool
	listTypesTool := mcp.NewTool(ToolListResourceTypes,
		mcp.WithDescription("List common Kubernetes resource types and the short names accepted by query_audit_log"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(listTypesTool, tools.WrapWithAuditLogging(ToolListResourceTypes, handleListResourceTypes, sc))

	return nil
}
