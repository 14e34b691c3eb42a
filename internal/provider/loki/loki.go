package loki

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/giantswarm/mcp-kube-audit/internal/audit"
	"github.com/giantswarm/mcp-kube-audit/internal/config"
	"github.com/giantswarm/mcp-kube-audit/internal/logging"
	"github.com/giantswarm/mcp-kube-audit/internal/normalize"
	"github.com/giantswarm/mcp-kube-audit/internal/provider"
)

// Type is the provider name used in cluster config.
const Type = "loki"

// Param keys and defaults.
const (
	ParamURL           = "url"
	ParamSelector      = "selector"
	ParamTenantID      = "tenant_id"
	ParamRetryMax      = "retry_max"
	ParamTimeout       = "timeout"
	ParamDefaultWindow = "default_window"

	DefaultSelector = `{job="kubernetes-audit"}`
	DefaultRetryMax = 2
	MaxRetryMax     = 10
	DefaultTimeout  = 30 * time.Second
)

func init() {
	provider.RegisterProvider(Type, New, ValidateParams)
}

// ValidateParams checks the provider block of a loki cluster.
func ValidateParams(p config.Params) []config.Violation {
	vs := p.Require(ParamURL)
	if raw, ok := p.String(ParamURL); ok {
		if _, err := NewClient(ClientConfig{BaseURL: raw}); err != nil {
			vs = append(vs, config.Violation{Path: ParamURL, Message: err.Error()})
		}
	}
	if sel, ok := p.String(ParamSelector); ok && !(strings.HasPrefix(sel, "{") && strings.HasSuffix(sel, "}")) {
		vs = append(vs, config.Violation{Path: ParamSelector, Message: "must be a LogQL stream selector like {job=\"audit\"}"})
	}

	n, err := p.Int(ParamRetryMax, DefaultRetryMax)
	switch {
	case err != nil:
		vs = append(vs, config.CheckErr(ParamRetryMax, err)...)
	case n < 0 || n > MaxRetryMax:
		vs = append(vs, config.Violation{Path: ParamRetryMax, Message: fmt.Sprintf("must be between 0 and %d", MaxRetryMax)})
	}

	_, err = p.Duration(ParamTimeout, DefaultTimeout)
	vs = append(vs, config.CheckErr(ParamTimeout, err)...)
	_, err = p.Duration(ParamDefaultWindow, audit.DefaultTimeWindow)
	vs = append(vs, config.CheckErr(ParamDefaultWindow, err)...)
	return vs
}

// Provider queries Kubernetes audit events stored as JSON lines in Loki.
type Provider struct {
	unitID        string
	selector      string
	defaultWindow time.Duration
	client        *Client
	logger        *slog.Logger
	now           func() time.Time
}

var _ provider.Provider = (*Provider)(nil)

// New is the provider.Factory for loki.
func New(_ context.Context, binding config.ClusterBinding, deps provider.Dependencies) (provider.Provider, error) {
	if vs := ValidateParams(binding.Params); len(vs) > 0 {
		return nil, fmt.Errorf("cluster %q: %s: %s", binding.Name, vs[0].Path, vs[0].Message)
	}
	p := binding.Params
	retryMax, _ := p.Int(ParamRetryMax, DefaultRetryMax)
	timeout, _ := p.Duration(ParamTimeout, DefaultTimeout)
	window, _ := p.Duration(ParamDefaultWindow, audit.DefaultTimeWindow)

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(logging.Cluster(binding.Name), logging.Provider(Type))

	client, err := NewClient(ClientConfig{
		BaseURL:  p.StringOr(ParamURL, ""),
		TenantID: p.StringOr(ParamTenantID, ""),
		RetryMax: retryMax,
		Timeout:  timeout,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("cluster %q: %w", binding.Name, err)
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Provider{
		unitID:        binding.Name,
		selector:      p.StringOr(ParamSelector, DefaultSelector),
		defaultWindow: window,
		client:        client,
		logger:        logger,
		now:           now,
	}, nil
}

// Query implements provider.Provider.
func (p *Provider) Query(ctx context.Context, filter audit.QueryFilter) (*audit.UnitResult, error) {
	start, end, err := filter.Window(p.now(), p.defaultWindow)
	if err != nil {
		return nil, audit.NewProviderQueryError(p.unitID, err)
	}
	query := BuildQuery(p.selector, filter)
	limit := audit.ClampLimit(filter.Limit)

	resp, err := p.client.QueryRange(ctx, query, start, end, limit)
	if err != nil {
		return nil, audit.NewProviderQueryError(p.unitID, err)
	}

	entries := Entries(resp.Data.Result, limit)
	p.logger.Debug("Loki query completed", logging.Query(query), logging.Count(len(entries)))

	return &audit.UnitResult{UnitID: p.unitID, Entries: entries, BackendQuery: query}, nil
}

// Close implements provider.Provider.
func (p *Provider) Close() error {
	return p.client.Close()
}

// BuildQuery translates filter into a LogQL pipeline over selector.
func BuildQuery(selector string, filter audit.QueryFilter) string {
	var b strings.Builder
	b.WriteString(selector)
	b.WriteString(" | json")

	writeLabelFilter(&b, "user_username", filter.User)
	writeLabelFilter(&b, "objectRef_namespace", filter.Namespace)
	if verbs := audit.Constraint(audit.NormalizeVerbs(filter.Verbs)); len(verbs) > 0 {
		fmt.Fprintf(&b, ` | verb=~%s`, alternation(verbs))
	}
	if types := audit.Constraint(audit.NormalizeResourceTypes(filter.ResourceTypes)); len(types) > 0 {
		fmt.Fprintf(&b, ` | objectRef_resource=~%s`, alternation(types))
	}
	writeLabelFilter(&b, "objectRef_name", filter.ResourceName)
	return b.String()
}

// writeLabelFilter appends an exact label filter, or a regex prefix match
// for suffix wildcards like "kube-*". Unconstrained values add nothing.
func writeLabelFilter(b *strings.Builder, label, value string) {
	if audit.IsWildcard(value) {
		return
	}
	if prefix, ok := audit.SuffixWildcard(value); ok {
		fmt.Fprintf(b, ` | %s=~%s`, label, strconv.Quote(regexp.QuoteMeta(prefix)+".*"))
		return
	}
	fmt.Fprintf(b, ` | %s=%s`, label, strconv.Quote(strings.TrimSpace(value)))
}

func alternation(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = regexp.QuoteMeta(v)
	}
	return strconv.Quote(strings.Join(quoted, "|"))
}

type line struct {
	ts   int64
	text string
}

// Entries flattens streams newest first and decodes at most limit lines.
func Entries(streams []Stream, limit int) []any {
	var lines []line
	for _, s := range streams {
		for _, v := range s.Values {
			if len(v) < 2 {
				continue
			}
			ts, err := strconv.ParseInt(v[0], 10, 64)
			if err != nil {
				continue
			}
			lines = append(lines, line{ts: ts, text: v[1]})
		}
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].ts > lines[j].ts })
	if limit > 0 && len(lines) > limit {
		lines = lines[:limit]
	}

	entries := make([]any, 0, len(lines))
	for _, l := range lines {
		entries = append(entries, DecodeLine(l.text))
	}
	return entries
}

// DecodeLine returns the audit event encoded in a log line, or a record
// holding the raw line when it is not a JSON object.
func DecodeLine(text string) any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		if n, err := normalize.Normalize(obj); err == nil {
			return n
		}
	}
	return normalize.MapOf("message", text)
}
