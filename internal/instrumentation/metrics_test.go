package instrumentation

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T, detailedLabels bool) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"), detailedLabels)
	if err != nil {
		t.Fatalf("NewMetrics returned error: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumPoints(t *testing.T, m metricdata.Metrics) []metricdata.DataPoint[int64] {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is %T, want Sum[int64]", m.Name, m.Data)
	}
	return sum.DataPoints
}

func TestNewMetrics(t *testing.T) {
	m, _ := newTestMetrics(t, false)

	if m.httpRequestsTotal == nil || m.toolCallsTotal == nil || m.unitQueriesTotal == nil ||
		m.fanoutRequestsTotal == nil || m.cacheEventsTotal == nil {
		t.Fatal("expected all counters to be initialized")
	}
	if m.detailedLabels {
		t.Error("detailedLabels should be false")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, "GET", "/healthz", 200, time.Millisecond)
	m.RecordToolCall(ctx, "query_audit_log", StatusSuccess, time.Millisecond)
	m.RecordUnitQuery(ctx, "cn-hangzhou", "alibaba_sls", StatusSuccess, time.Millisecond)
	m.RecordFanout(ctx, 2, 1, time.Millisecond)
	m.RecordCacheEvent(ctx, "sls_logstore", "hit")
}

func TestMetrics_RecordUnitQuery_ClusterLabel(t *testing.T) {
	tests := []struct {
		name           string
		detailedLabels bool
		wantCluster    bool
	}{
		{name: "default omits cluster", detailedLabels: false, wantCluster: false},
		{name: "detailed includes cluster", detailedLabels: true, wantCluster: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, reader := newTestMetrics(t, tt.detailedLabels)
			m.RecordUnitQuery(context.Background(), "cn-hangzhou", "alibaba_sls", StatusTimeout, 2*time.Second)

			got := collect(t, reader)
			points := sumPoints(t, got["audit_unit_queries_total"])
			if len(points) != 1 {
				t.Fatalf("expected 1 data point, got %d", len(points))
			}
			attrs := points[0].Attributes
			if v, _ := attrs.Value(attribute.Key(attrProvider)); v.AsString() != "alibaba_sls" {
				t.Errorf("provider = %q", v.AsString())
			}
			if v, _ := attrs.Value(attribute.Key(attrStatus)); v.AsString() != StatusTimeout {
				t.Errorf("status = %q", v.AsString())
			}
			_, hasCluster := attrs.Value(attribute.Key(attrCluster))
			if hasCluster != tt.wantCluster {
				t.Errorf("cluster label present = %v, want %v", hasCluster, tt.wantCluster)
			}
			if _, ok := got["audit_unit_query_duration_seconds"]; !ok {
				t.Error("expected duration histogram")
			}
		})
	}
}

func TestMetrics_RecordFanout(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordFanout(ctx, 3, 1, 10*time.Millisecond)
	m.RecordFanout(ctx, 2, 2, 10*time.Millisecond)
	m.RecordFanout(ctx, 1, 0, 10*time.Millisecond)

	got := collect(t, reader)

	byStatus := map[string]int64{}
	for _, p := range sumPoints(t, got["audit_fanout_requests_total"]) {
		v, _ := p.Attributes.Value(attribute.Key(attrStatus))
		byStatus[v.AsString()] += p.Value
	}
	if byStatus[StatusSuccess] != 2 || byStatus[StatusError] != 1 {
		t.Errorf("unexpected fan-out counts: %v", byStatus)
	}

	var failed int64
	for _, p := range sumPoints(t, got["audit_fanout_failed_units_total"]) {
		failed += p.Value
	}
	if failed != 3 {
		t.Errorf("failed units = %d, want 3", failed)
	}
}

func TestMetrics_RecordCacheEvent(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordCacheEvent(ctx, "sls_logstore", "hit")
	m.RecordCacheEvent(ctx, "sls_logstore", "hit")
	m.RecordCacheEvent(ctx, "sls_logstore", "miss")

	counts := map[string]int64{}
	for _, p := range sumPoints(t, collect(t, reader)["audit_cache_events_total"]) {
		v, _ := p.Attributes.Value(attribute.Key(attrEvent))
		counts[v.AsString()] += p.Value
	}
	if counts["hit"] != 2 || counts["miss"] != 1 {
		t.Errorf("unexpected cache counts: %v", counts)
	}
}

func TestMetrics_RecordToolCall(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	m.RecordToolCall(context.Background(), "list_clusters", StatusSuccess, 5*time.Millisecond)

	points := sumPoints(t, collect(t, reader)["mcp_tool_calls_total"])
	if len(points) != 1 || points[0].Value != 1 {
		t.Fatalf("unexpected points: %+v", points)
	}
	if v, _ := points[0].Attributes.Value(attribute.Key(attrTool)); v.AsString() != "list_clusters" {
		t.Errorf("tool = %q", v.AsString())
	}
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	m, reader := newTestMetrics(t, true)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordHTTPRequest(ctx, "POST", "/mcp", 200, time.Millisecond)
			m.RecordUnitQuery(ctx, "cn-shanghai", "loki", StatusSuccess, time.Millisecond)
		}()
	}
	wg.Wait()

	var total int64
	for _, p := range sumPoints(t, collect(t, reader)["http_requests_total"]) {
		total += p.Value
	}
	if total != 50 {
		t.Errorf("http_requests_total = %d, want 50", total)
	}
}
