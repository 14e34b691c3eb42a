// Package instrumentation wires OpenTelemetry metrics and tracing for the
// audit server.
//
// # Metrics
//
//   - http_requests_total, http_request_duration_seconds: HTTP transport
//   - mcp_tool_calls_total, mcp_tool_call_duration_seconds: tool invocations
//   - audit_unit_queries_total, audit_unit_query_duration_seconds: one
//     backend query per cluster, labelled by provider and status
//   - audit_fanout_requests_total, audit_fanout_duration_seconds,
//     audit_fanout_failed_units_total: whole fan-out calls
//   - audit_cache_events_total: provider cache hits and misses
//
// The cluster label on unit metrics is only added when DetailedLabels is
// set (METRICS_DETAILED_LABELS=true).
//
// # Tracing
//
// Tool calls open a server span; each cluster queried during a fan-out gets
// a child client span named unit.query.
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: enable exporters (default: false)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces and metrics
//   - OTEL_EXPORTER_OTLP_INSECURE: plain HTTP for OTLP
//   - OTEL_TRACES_SAMPLER_ARG: sampling rate between 0 and 1 (default: 0.1)
//   - PROMETHEUS_ENDPOINT: metrics path (default: /metrics)
package instrumentation
