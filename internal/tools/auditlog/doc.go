// Package auditlog provides the MCP tools that query Kubernetes audit logs.
//
// Tools:
//   - query_audit_log: filters audit events by namespace, verbs, resource
//     types, resource name, user and time range, on the default cluster or
//     fanned out over cluster_names
//   - list_clusters: lists configured clusters and the default cluster
//   - list_common_resource_types: lists resource names and accepted aliases
//
// Per-cluster failures never fail the call; they are listed in the
// response's "errors" next to the entries returned by the other clusters.
//
// # Example Usage
//
//	query_audit_log {"verbs": ["delete"], "resource_types": ["deploy"], "start_time": "2h"}
//
//	query_audit_log {"cluster_names": ["cn-hangzhou", "cn-beijing"], "user": "system:*"}
package auditlog
