// Package audit holds the backend-agnostic types shared by the providers, the
// fan-out executor and the MCP tool layer: the QueryFilter a caller builds,
// the UnitResult a provider returns for one cluster, and the AggregateResult
// the executor assembles across clusters.
//
// Errors that cross package boundaries live here as well. UnknownClusterError
// and ProviderQueryError are unit-local: the executor records them in
// AggregateResult.Errors instead of failing the whole call.
package audit
