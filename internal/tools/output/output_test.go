package output

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-kube-audit/internal/audit"
	"github.com/giantswarm/mcp-kube-audit/internal/normalize"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// decode builds an entry the way providers do: JSON normalized into *normalize.Map trees.
func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	out, err := normalize.Normalize(v)
	require.NoError(t, err)
	return out
}

func encode(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestMaskSecrets(t *testing.T) {
	tests := []struct {
		name       string
		entry      string
		wantMasked bool
		want       string
	}{
		{
			name: "secret create request by objectRef",
			entry: `{"verb":"create","objectRef":{"resource":"secrets","name":"db"},
				"requestObject":{"metadata":{"name":"db"},"data":{"password":"c2VjcmV0"}}}`,
			wantMasked: true,
			want: `{"objectRef":{"name":"db","resource":"secrets"},` +
				`"requestObject":{"data":{"password":"***REDACTED***"},"metadata":{"name":"db"}},"verb":"create"}`,
		},
		{
			name: "response object with kind Secret and last-applied annotation",
			entry: `{"objectRef":{"resource":"secrets"},"responseObject":{"kind":"Secret",
				"metadata":{"annotations":{"kubectl.kubernetes.io/last-applied-configuration":"{\"data\":{}}","team":"a"}},
				"stringData":{"token":"abc"}}}`,
			wantMasked: true,
			want: `{"objectRef":{"resource":"secrets"},"responseObject":{"kind":"Secret",` +
				`"metadata":{"annotations":{"kubectl.kubernetes.io/last-applied-configuration":"***REDACTED***","team":"a"}},` +
				`"stringData":{"token":"***REDACTED***"}}}`,
		},
		{
			name: "secret list response",
			entry: `{"verb":"list","responseObject":{"kind":"SecretList","items":[
				{"metadata":{"name":"a"},"data":{"k":"v"}},{"metadata":{"name":"b"}}]}}`,
			wantMasked: true,
			want: `{"responseObject":{"items":[{"data":{"k":"***REDACTED***"},"metadata":{"name":"a"}},` +
				`{"metadata":{"name":"b"}}],"kind":"SecretList"},"verb":"list"}`,
		},
		{
			name: "undecodable request object on a secret",
			entry: `{"verb":"update","objectRef":{"resource":"secrets","name":"db"},
				"requestObject":"{\"data\":{\"password\":\"c2Vj","responseObject":"truncated"}`,
			wantMasked: true,
			want: `{"objectRef":{"name":"db","resource":"secrets"},` +
				`"requestObject":"***REDACTED***","responseObject":"***REDACTED***","verb":"update"}`,
		},
		{
			name:       "raw object on a configmap untouched",
			entry:      `{"objectRef":{"resource":"configmaps"},"requestObject":"{\"data\""}`,
			wantMasked: false,
			want:       `{"objectRef":{"resource":"configmaps"},"requestObject":"{\"data\""}`,
		},
		{
			name:       "configmap untouched",
			entry:      `{"objectRef":{"resource":"configmaps"},"requestObject":{"data":{"k":"v"}}}`,
			wantMasked: false,
			want:       `{"objectRef":{"resource":"configmaps"},"requestObject":{"data":{"k":"v"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := decode(t, tt.entry)
			assert.Equal(t, tt.wantMasked, MaskSecrets(entry))
			assert.JSONEq(t, tt.want, encode(t, entry))
		})
	}
}

func TestMaskSecrets_PlainMapsAndNonMappings(t *testing.T) {
	entry := map[string]any{
		"objectRef":     map[string]any{"resource": "secrets"},
		"requestObject": map[string]any{"data": map[string]any{"k": "v"}},
	}
	assert.True(t, MaskSecrets(entry))
	assert.Equal(t, RedactedValue, entry["requestObject"].(map[string]any)["data"].(map[string]any)["k"])

	assert.False(t, MaskSecrets("message"))
	assert.False(t, MaskSecrets(nil))
}

func TestSlimEntry(t *testing.T) {
	entry := decode(t, `{
		"verb":"update",
		"metadata":{"name":"ev","managedFields":[{"manager":"kubectl"}]},
		"requestObject":{
			"metadata":{"name":"web","managedFields":[{}],"ownerReferences":[{}],
				"annotations":{"kubectl.kubernetes.io/last-applied-configuration":"{}","keep":"yes"}},
			"status":{"conditions":[{"type":"Ready","lastProbeTime":"t","status":"True"}]}
		}
	}`)

	SlimEntry(entry, nil)

	assert.JSONEq(t, `{
		"verb":"update",
		"metadata":{"name":"ev"},
		"requestObject":{
			"metadata":{"name":"web","annotations":{"keep":"yes"}},
			"status":{"conditions":[{"type":"Ready","status":"True"}]}
		}
	}`, encode(t, entry))
}

func TestRemoveField(t *testing.T) {
	tests := []struct {
		name string
		in   string
		path string
		want string
	}{
		{"top level", `{"a":1,"b":2}`, "a", `{"b":2}`},
		{"nested", `{"a":{"b":1,"c":2}}`, "a.b", `{"a":{"c":2}}`},
		{"missing path", `{"a":{"b":1}}`, "x.y", `{"a":{"b":1}}`},
		{"through non-mapping", `{"a":"str"}`, "a.b", `{"a":"str"}`},
		{"wildcard", `{"l":[{"x":1,"y":2},{"x":3}]}`, "l[*].x", `{"l":[{"y":2},{}]}`},
		{"dotted key", `{"m":{"a.b/c":1,"d":2}}`, "m.a.b/c", `{"m":{"d":2}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := decode(t, tt.in)
			removeField(node, tt.path)
			assert.JSONEq(t, tt.want, encode(t, node))
		})
	}
}

func TestFitEntries(t *testing.T) {
	entries := []any{"aaaa", "bbbb", "cccc"} // each encodes to 6 bytes

	kept, warning := FitEntries(entries, 100)
	assert.Equal(t, 3, kept)
	assert.Nil(t, warning)

	// [ + 6 + , + 6 = 15 bytes incl. closing bracket budget
	kept, warning = FitEntries(entries, 15)
	assert.Equal(t, 2, kept)
	require.NotNil(t, warning)
	assert.Equal(t, 2, warning.Shown)
	assert.Equal(t, 3, warning.Total)
	assert.Contains(t, warning.Message, "2 of 3")

	kept, warning = FitEntries(entries, 4)
	assert.Equal(t, 0, kept)
	require.NotNil(t, warning)

	kept, warning = FitEntries(nil, 10)
	assert.Equal(t, 0, kept)
	assert.Nil(t, warning)
}

func TestConfigValidate(t *testing.T) {
	cfg := (&Config{MaxResponseBytes: 10 * AbsoluteMaxResponseBytes, SlimOutput: true}).Validate()
	assert.Equal(t, AbsoluteMaxResponseBytes, cfg.MaxResponseBytes)
	assert.Equal(t, DefaultExcludedFields(), cfg.ExcludedFields)

	cfg = (&Config{}).Validate()
	assert.Equal(t, DefaultMaxResponseBytes, cfg.MaxResponseBytes)
	assert.Empty(t, cfg.ExcludedFields)
}

func TestProcessor_Process(t *testing.T) {
	big := strings.Repeat("x", 400)
	agg := audit.NewAggregateResult()
	agg.AddUnit(&audit.UnitResult{UnitID: "cn-hangzhou", Entries: []any{
		decode(t, `{"objectRef":{"resource":"secrets"},"requestObject":{"data":{"k":"v"}}}`),
		big,
	}})
	agg.AddUnit(&audit.UnitResult{UnitID: "cn-shanghai", Entries: []any{big, big}})

	p := NewProcessor(&Config{MaxResponseBytes: 1000, MaskSecrets: true, SlimOutput: true}, quietLogger())
	warning := p.Process(agg)

	require.NotNil(t, warning)
	assert.Equal(t, 4, warning.Total)
	assert.Equal(t, 3, warning.Shown)
	assert.Equal(t, 3, agg.Count)
	assert.Len(t, agg.Entries, 3)
	assert.Equal(t, 2, agg.Units[0].Count)
	assert.Equal(t, 1, agg.Units[1].Count)
	assert.Contains(t, encode(t, agg.Entries[0]), RedactedValue)
}

func TestProcessor_NoTruncation(t *testing.T) {
	agg := audit.NewAggregateResult()
	agg.AddUnit(&audit.UnitResult{UnitID: "c1", Entries: []any{"a"}})

	assert.Nil(t, NewProcessor(nil, quietLogger()).Process(agg))
	assert.Equal(t, 1, agg.Count)
	assert.Nil(t, NewProcessor(nil, nil).Process(nil))
}
