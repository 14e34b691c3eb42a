package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod   = "method"
	attrPath     = "path"
	attrStatus   = "status"
	attrTool     = "tool"
	attrCluster  = "cluster"
	attrProvider = "provider"
	attrCache    = "cache"
	attrEvent    = "event"
)

var durationBuckets = []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0}

// Metrics provides methods for recording observability metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// MCP tool metrics
	toolCallsTotal   metric.Int64Counter
	toolCallDuration metric.Float64Histogram

	// Fan-out metrics
	unitQueriesTotal      metric.Int64Counter
	unitQueryDuration     metric.Float64Histogram
	fanoutRequestsTotal   metric.Int64Counter
	fanoutDuration        metric.Float64Histogram
	fanoutFailedUnitTotal metric.Int64Counter

	// Cache metrics
	cacheEventsTotal metric.Int64Counter

	// detailedLabels adds the cluster label to unit query metrics.
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.toolCallsTotal, err = meter.Int64Counter(
		"mcp_tool_calls_total",
		metric.WithDescription("Total number of MCP tool calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_calls_total counter: %w", err)
	}

	m.toolCallDuration, err = meter.Float64Histogram(
		"mcp_tool_call_duration_seconds",
		metric.WithDescription("MCP tool call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_call_duration_seconds histogram: %w", err)
	}

	m.unitQueriesTotal, err = meter.Int64Counter(
		"audit_unit_queries_total",
		metric.WithDescription("Total number of per-cluster audit backend queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit_unit_queries_total counter: %w", err)
	}

	m.unitQueryDuration, err = meter.Float64Histogram(
		"audit_unit_query_duration_seconds",
		metric.WithDescription("Per-cluster audit backend query duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit_unit_query_duration_seconds histogram: %w", err)
	}

	m.fanoutRequestsTotal, err = meter.Int64Counter(
		"audit_fanout_requests_total",
		metric.WithDescription("Total number of fan-out audit queries"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit_fanout_requests_total counter: %w", err)
	}

	m.fanoutDuration, err = meter.Float64Histogram(
		"audit_fanout_duration_seconds",
		metric.WithDescription("Fan-out audit query duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit_fanout_duration_seconds histogram: %w", err)
	}

	m.fanoutFailedUnitTotal, err = meter.Int64Counter(
		"audit_fanout_failed_units_total",
		metric.WithDescription("Total number of units that failed inside fan-out queries"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit_fanout_failed_units_total counter: %w", err)
	}

	m.cacheEventsTotal, err = meter.Int64Counter(
		"audit_cache_events_total",
		metric.WithDescription("Total number of provider cache events by cache and event"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit_cache_events_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordToolCall records an MCP tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, duration time.Duration) {
	if m == nil || m.toolCallsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	)
	m.toolCallsTotal.Add(ctx, 1, attrs)
	m.toolCallDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordUnitQuery records one provider query made by the fan-out executor.
//
// CARDINALITY NOTE: the cluster label is only recorded when detailedLabels
// is enabled; provider and status are always recorded.
func (m *Metrics) RecordUnitQuery(ctx context.Context, cluster, providerType, status string, duration time.Duration) {
	if m == nil || m.unitQueriesTotal == nil {
		return
	}

	kv := []attribute.KeyValue{
		attribute.String(attrProvider, providerType),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels {
		kv = append(kv, attribute.String(attrCluster, cluster))
	}
	attrs := metric.WithAttributes(kv...)
	m.unitQueriesTotal.Add(ctx, 1, attrs)
	m.unitQueryDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordFanout records one fan-out call over units, of which failed did not succeed.
func (m *Metrics) RecordFanout(ctx context.Context, units, failed int, duration time.Duration) {
	if m == nil || m.fanoutRequestsTotal == nil {
		return
	}

	status := StatusSuccess
	if units > 0 && failed == units {
		status = StatusError
	}
	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	m.fanoutRequestsTotal.Add(ctx, 1, attrs)
	m.fanoutDuration.Record(ctx, duration.Seconds(), attrs)
	if failed > 0 {
		m.fanoutFailedUnitTotal.Add(ctx, int64(failed))
	}
}

// RecordCacheEvent records a provider cache event (hit, miss, evictions).
func (m *Metrics) RecordCacheEvent(ctx context.Context, cache, event string) {
	if m == nil || m.cacheEventsTotal == nil {
		return
	}

	m.cacheEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrCache, cache),
		attribute.String(attrEvent, event),
	))
}
