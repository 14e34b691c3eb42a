package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-kube-audit/internal/fanout"
	"github.com/giantswarm/mcp-kube-audit/internal/normalize"
	"github.com/giantswarm/mcp-kube-audit/internal/provider/providertest"
	"github.com/giantswarm/mcp-kube-audit/internal/server"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newServerContext(t *testing.T, defaultCluster string, stubs []*providertest.Stub, opts ...server.Option) *server.ServerContext {
	t.Helper()
	reg := providertest.OpenRegistry(t, defaultCluster, stubs...)
	opts = append([]server.Option{server.WithRegistry(reg), server.WithLogger(testLogger())}, opts...)
	sc, err := server.NewServerContext(context.Background(), opts...)
	require.NoError(t, err)
	return sc
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest, *server.ServerContext) (*mcp.CallToolResult, error), sc *server.ServerContext, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	request := mcp.CallToolRequest{}
	request.Params.Arguments = args
	result, err := handler(context.Background(), request, sc)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func textAt(t *testing.T, result *mcp.CallToolResult, i int) string {
	t.Helper()
	require.Greater(t, len(result.Content), i)
	tc, ok := result.Content[i].(mcp.TextContent)
	require.True(t, ok, "content %d is not text", i)
	return tc.Text
}

func decode(t *testing.T, text string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	return out
}

func auditEvent(verb, resource, name string) *normalize.Map {
	return normalize.MapOf(
		"verb", verb,
		"objectRef", normalize.MapOf("resource", resource, "namespace", "default", "name", name),
		"user", normalize.MapOf("username", "kubernetes-admin"),
	)
}

func TestHandleQueryAuditLog_DefaultCluster(t *testing.T) {
	hz := &providertest.Stub{Name: "cn-hangzhou", Entries: []any{
		auditEvent("delete", "pods", "nginx-1"),
		auditEvent("delete", "pods", "nginx-2"),
	}}
	bj := &providertest.Stub{Name: "cn-beijing"}
	sc := newServerContext(t, "cn-hangzhou", []*providertest.Stub{hz, bj})

	result := callTool(t, handleQueryAuditLog, sc, map[string]any{
		"verbs":          "DELETE, get",
		"resource_types": []any{"po", "deploy", "Pod"},
		"namespace":      "default",
		"limit":          float64(500),
	})
	require.False(t, result.IsError, textAt(t, result, 0))

	payload := decode(t, textAt(t, result, 0))
	assert.EqualValues(t, 2, payload["count"])
	assert.Len(t, payload["entries"], 2)
	assert.Equal(t, []any{}, payload["errors"])

	filter := payload["filter"].(map[string]any)
	assert.EqualValues(t, 100, filter["limit"], "limit is clamped")
	assert.Equal(t, []any{"delete", "get"}, filter["verbs"])

	assert.Equal(t, 1, hz.Calls())
	assert.Equal(t, 0, bj.Calls(), "only the default cluster is queried")
	last := hz.LastFilter()
	assert.Equal(t, []string{"cn-hangzhou"}, last.TargetUnits)
	assert.Equal(t, []string{"po", "deployments", "pods"}, last.ResourceTypes)
	assert.Equal(t, "default", last.Namespace)
}

func TestHandleQueryAuditLog_FanOutWithPartialFailure(t *testing.T) {
	hz := &providertest.Stub{Name: "cn-hangzhou", Entries: []any{auditEvent("get", "pods", "a")}}
	bj := &providertest.Stub{Name: "cn-beijing", Err: errors.New("connection refused")}
	sh := &providertest.Stub{Name: "cn-shanghai", Entries: []any{auditEvent("list", "pods", "")}}
	sc := newServerContext(t, "cn-hangzhou", []*providertest.Stub{hz, bj, sh})

	result := callTool(t, handleQueryAuditLog, sc, map[string]any{
		"cluster_name":  "ignored",
		"cluster_names": []any{"cn-hangzhou", "cn-beijing", "cn-unknown", "cn-shanghai", "cn-hangzhou"},
	})
	require.False(t, result.IsError)

	payload := decode(t, textAt(t, result, 0))
	assert.EqualValues(t, 2, payload["count"])

	errs := payload["errors"].([]any)
	require.Len(t, errs, 2)
	assert.Equal(t, "cn-beijing", errs[0].(map[string]any)["unit_id"])
	assert.Equal(t, "cn-unknown", errs[1].(map[string]any)["unit_id"])
	assert.Contains(t, errs[1].(map[string]any)["message"], "list_clusters")

	units := payload["units"].([]any)
	require.Len(t, units, 2)
	assert.Equal(t, "stub query for cn-hangzhou", units[0].(map[string]any)["provider_query"])
	assert.Equal(t, 1, hz.Calls(), "duplicate targets are queried once")
}

func TestHandleQueryAuditLog_InvalidArguments(t *testing.T) {
	sc := newServerContext(t, "c1", []*providertest.Stub{{Name: "c1"}})

	tests := []struct {
		name    string
		args    map[string]any
		wantMsg string
	}{
		{name: "fractional limit", args: map[string]any{"limit": 1.5}, wantMsg: "Invalid query: invalid limit"},
		{name: "unparseable start", args: map[string]any{"start_time": "yesterday"}, wantMsg: "Invalid query: invalid start_time"},
		{name: "start after end", args: map[string]any{"start_time": "2024-02-01T00:00:00Z", "end_time": "2024-01-01T00:00:00Z"}, wantMsg: "is after end_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callTool(t, handleQueryAuditLog, sc, tt.args)
			assert.True(t, result.IsError)
			assert.Contains(t, textAt(t, result, 0), tt.wantMsg)
		})
	}
}

func TestHandleQueryAuditLog_AllUnitsFailed(t *testing.T) {
	stubs := []*providertest.Stub{
		{Name: "c1", Err: errors.New("unauthorized")},
		{Name: "c2", Err: errors.New("unauthorized")},
	}

	t.Run("aggregate is returned by default", func(t *testing.T) {
		sc := newServerContext(t, "c1", stubs)
		result := callTool(t, handleQueryAuditLog, sc, map[string]any{"cluster_names": "c1,c2"})
		assert.False(t, result.IsError)
		payload := decode(t, textAt(t, result, 0))
		assert.EqualValues(t, 0, payload["count"])
		assert.Len(t, payload["errors"], 2)
	})

	t.Run("error result when enabled", func(t *testing.T) {
		reg := providertest.OpenRegistry(t, "c1", stubs...)
		sc, err := server.NewServerContext(context.Background(),
			server.WithRegistry(reg),
			server.WithLogger(testLogger()),
			server.WithExecutor(fanout.NewExecutor(reg,
				fanout.WithLogger(testLogger()),
				fanout.WithFailOnAllUnitsFailed(true),
			)),
		)
		require.NoError(t, err)

		result := callTool(t, handleQueryAuditLog, sc, map[string]any{"cluster_names": "c1,c2"})
		assert.True(t, result.IsError)
		assert.Contains(t, textAt(t, result, 0), "All requested clusters failed")
		payload := decode(t, textAt(t, result, 1))
		assert.Len(t, payload["errors"], 2)
	})
}

func TestHandleQueryAuditLog_MasksSecrets(t *testing.T) {
	event := normalize.MapOf(
		"verb", "create",
		"objectRef", normalize.MapOf("resource", "secrets", "namespace", "default", "name", "db"),
		"requestObject", normalize.MapOf(
			"kind", "Secret",
			"data", normalize.MapOf("password", "aHVudGVyMg=="),
		),
	)
	sc := newServerContext(t, "c1", []*providertest.Stub{{Name: "c1", Entries: []any{event}}})

	result := callTool(t, handleQueryAuditLog, sc, map[string]any{})
	require.False(t, result.IsError)

	text := textAt(t, result, 0)
	assert.NotContains(t, text, "aHVudGVyMg==")
	assert.Contains(t, text, `"password": "***REDACTED***"`)
}

func TestHandleQueryAuditLog_Truncation(t *testing.T) {
	big := make([]any, 0, 5)
	for i := 0; i < 5; i++ {
		big = append(big, normalize.MapOf("message", strings.Repeat("x", 400)))
	}
	sc := newServerContext(t, "c1", []*providertest.Stub{{Name: "c1", Entries: big}},
		server.WithOutputConfig(server.OutputConfig{MaxResponseBytes: 1000, MaskSecrets: true}),
	)

	result := callTool(t, handleQueryAuditLog, sc, map[string]any{})
	require.False(t, result.IsError)

	payload := decode(t, textAt(t, result, 0))
	truncation, ok := payload["truncation"].(map[string]any)
	require.True(t, ok, "a truncation warning is reported")
	assert.EqualValues(t, 5, truncation["total"])
	assert.EqualValues(t, 2, truncation["shown"])
	assert.EqualValues(t, 2, payload["count"])
	assert.Len(t, payload["entries"], 2)
}

func TestHandleListClusters(t *testing.T) {
	sc := newServerContext(t, "cn-beijing", []*providertest.Stub{
		{Name: "cn-hangzhou", Description: "Hangzhou production"},
		{Name: "cn-beijing"},
	})

	result := callTool(t, handleListClusters, sc, nil)
	require.False(t, result.IsError)

	var response ClustersResponse
	require.NoError(t, json.Unmarshal([]byte(textAt(t, result, 0)), &response))
	assert.Equal(t, ClustersResponse{
		DefaultCluster: "cn-beijing",
		Clusters: []ClusterEntry{
			{Name: "cn-hangzhou", Provider: providertest.Type, Description: "Hangzhou production", Alias: []string{}},
			{Name: "cn-beijing", Provider: providertest.Type, Description: "Cluster cn-beijing", Alias: []string{}},
		},
	}, response)
}

func TestHandleListResourceTypes(t *testing.T) {
	sc := newServerContext(t, "c1", []*providertest.Stub{{Name: "c1"}})

	result := callTool(t, handleListResourceTypes, sc, nil)
	require.False(t, result.IsError)

	payload := decode(t, textAt(t, result, 0))
	types := payload["resource_types"].([]any)
	assert.NotEmpty(t, types)
	assert.Contains(t, types, map[string]any{"name": "configmaps", "kind": "ConfigMap", "aliases": []any{"cm", "configmap"}})
}

func TestRegisterAuditTools(t *testing.T) {
	sc := newServerContext(t, "c1", []*providertest.Stub{{Name: "c1"}})

	mcpSrv := mcpserver.NewMCPServer("test", "0.0.1",
		mcpserver.WithToolCapabilities(true),
	)
	require.NoError(t, RegisterAuditTools(mcpSrv, sc))

	tools := mcpSrv.ListTools()
	for _, name := range []string{ToolQueryAuditLog, ToolListClusters, ToolListResourceTypes} {
		assert.Contains(t, tools, name)
	}
}
