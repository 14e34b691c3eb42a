package sls

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/giantswarm/mcp-kube-audit/internal/audit"
	"github.com/giantswarm/mcp-kube-audit/internal/cache"
	"github.com/giantswarm/mcp-kube-audit/internal/config"
	"github.com/giantswarm/mcp-kube-audit/internal/logging"
	"github.com/giantswarm/mcp-kube-audit/internal/normalize"
	"github.com/giantswarm/mcp-kube-audit/internal/provider"
)

// Type is the provider name used in cluster config.
const Type = "alibaba_sls"

// Param keys and defaults.
const (
	ParamEndpoint         = "endpoint"
	ParamProject          = "project"
	ParamLogstore         = "logstore"
	ParamRegion           = "region"
	ParamAccessKeyID      = "access_key_id"
	ParamAccessKeySecret  = "access_key_secret"
	ParamSecurityToken    = "security_token"
	ParamDefaultWindow    = "default_window"
	ParamPageSize         = "page_size"
	ParamLogstoreCacheTTL = "logstore_cache_ttl"

	EnvAccessKeyID     = "ALIBABA_CLOUD_ACCESS_KEY_ID"
	EnvAccessKeySecret = "ALIBABA_CLOUD_ACCESS_KEY_SECRET"
	EnvSecurityToken   = "ALIBABA_CLOUD_SECURITY_TOKEN"

	DefaultPageSize         = 100
	MaxPageSize             = 100
	DefaultLogstoreCacheTTL = 10 * time.Minute
)

func init() {
	provider.RegisterProvider(Type, New, ValidateParams)
}

// ValidateParams checks the provider block of an alibaba_sls cluster.
func ValidateParams(p config.Params) []config.Violation {
	vs := p.Require(ParamEndpoint, ParamProject, ParamLogstore, ParamRegion)

	_, idSet := p.String(ParamAccessKeyID)
	_, secretSet := p.String(ParamAccessKeySecret)
	if idSet != secretSet {
		vs = append(vs, config.Violation{
			Path:    ParamAccessKeyID,
			Message: "access_key_id and access_key_secret must be set together",
		})
	}

	_, err := p.Duration(ParamDefaultWindow, audit.DefaultTimeWindow)
	vs = append(vs, config.CheckErr(ParamDefaultWindow, err)...)
	_, err = p.Duration(ParamLogstoreCacheTTL, DefaultLogstoreCacheTTL)
	vs = append(vs, config.CheckErr(ParamLogstoreCacheTTL, err)...)

	size, err := p.Int(ParamPageSize, DefaultPageSize)
	switch {
	case err != nil:
		vs = append(vs, config.CheckErr(ParamPageSize, err)...)
	case size < 1 || size > MaxPageSize:
		vs = append(vs, config.Violation{
			Path:    ParamPageSize,
			Message: fmt.Sprintf("must be between 1 and %d", MaxPageSize),
		})
	}
	return vs
}

// Options holds the resolved settings of one SLS provider.
type Options struct {
	UnitID        string
	Project       string
	Logstore      string
	Region        string
	DefaultWindow time.Duration
	PageSize      int
	LogstoreTTL   time.Duration
}

// Provider queries Kubernetes audit logs shipped to an SLS logstore.
type Provider struct {
	client    Client
	opts      Options
	logstores *cache.Cache[string, bool]
	logger    *slog.Logger
	now       func() time.Time
}

var _ provider.Provider = (*Provider)(nil)

// New is the provider.Factory for alibaba_sls.
func New(_ context.Context, binding config.ClusterBinding, deps provider.Dependencies) (provider.Provider, error) {
	opts, err := optionsFrom(binding)
	if err != nil {
		return nil, err
	}

	getenv := deps.Getenv
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	creds := Credentials{
		AccessKeyID:     binding.Params.StringOr(ParamAccessKeyID, getenv(EnvAccessKeyID)),
		AccessKeySecret: binding.Params.StringOr(ParamAccessKeySecret, getenv(EnvAccessKeySecret)),
		SecurityToken:   binding.Params.StringOr(ParamSecurityToken, getenv(EnvSecurityToken)),
	}
	if creds.AccessKeyID == "" || creds.AccessKeySecret == "" {
		return nil, fmt.Errorf("cluster %q: access key id and secret are required; set %s and %s or the %s/%s params",
			binding.Name, EnvAccessKeyID, EnvAccessKeySecret, ParamAccessKeyID, ParamAccessKeySecret)
	}

	endpoint := binding.Params.StringOr(ParamEndpoint, "")
	return NewWithClient(NewClient(endpoint, creds), opts, deps), nil
}

func optionsFrom(binding config.ClusterBinding) (Options, error) {
	if vs := ValidateParams(binding.Params); len(vs) > 0 {
		return Options{}, fmt.Errorf("cluster %q: %s: %s", binding.Name, vs[0].Path, vs[0].Message)
	}
	p := binding.Params
	window, _ := p.Duration(ParamDefaultWindow, audit.DefaultTimeWindow)
	ttl, _ := p.Duration(ParamLogstoreCacheTTL, DefaultLogstoreCacheTTL)
	size, _ := p.Int(ParamPageSize, DefaultPageSize)
	return Options{
		UnitID:        binding.Name,
		Project:       p.StringOr(ParamProject, ""),
		Logstore:      p.StringOr(ParamLogstore, ""),
		Region:        p.StringOr(ParamRegion, ""),
		DefaultWindow: window,
		PageSize:      size,
		LogstoreTTL:   ttl,
	}, nil
}

// NewWithClient builds a Provider around an existing client.
func NewWithClient(client Client, opts Options, deps provider.Dependencies) *Provider {
	if opts.PageSize <= 0 || opts.PageSize > MaxPageSize {
		opts.PageSize = DefaultPageSize
	}
	if opts.DefaultWindow <= 0 {
		opts.DefaultWindow = audit.DefaultTimeWindow
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(logging.Cluster(opts.UnitID), logging.Provider(Type))

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	cacheOpts := []cache.Option{
		cache.WithConfig(cache.Config{Name: "sls_logstore", TTL: opts.LogstoreTTL, MaxEntries: 16}),
		cache.WithLogger(logger),
	}
	if deps.CacheMetrics != nil {
		cacheOpts = append(cacheOpts, cache.WithMetrics(deps.CacheMetrics))
	}

	return &Provider{
		client:    client,
		opts:      opts,
		logstores: cache.New[string, bool](cacheOpts...),
		logger:    logger,
		now:       now,
	}
}

// Query implements provider.Provider.
func (p *Provider) Query(ctx context.Context, filter audit.QueryFilter) (*audit.UnitResult, error) {
	start, end, err := filter.Window(p.now(), p.opts.DefaultWindow)
	if err != nil {
		return nil, audit.NewProviderQueryError(p.opts.UnitID, err)
	}
	query := BuildQuery(filter)

	if err := p.ensureLogstore(ctx); err != nil {
		return nil, audit.NewProviderQueryError(p.opts.UnitID, err)
	}

	limit := audit.ClampLimit(filter.Limit)
	entries := make([]any, 0, limit)
	for offset := 0; len(entries) < limit; {
		size := min(p.opts.PageSize, limit-len(entries))
		resp, err := call(ctx, func() (*aliyunResponse, error) {
			return p.client.GetLogs(p.opts.Project, p.opts.Logstore, "",
				start.Unix(), end.Unix(), query, int64(size), int64(offset), false)
		})
		if err != nil {
			return nil, audit.NewProviderQueryError(p.opts.UnitID, err)
		}
		if resp == nil {
			break
		}
		for _, raw := range resp.Logs {
			entries = append(entries, DecodeEntry(raw))
		}
		if len(resp.Logs) < size {
			break
		}
		offset += len(resp.Logs)
	}

	p.logger.Debug("SLS query completed",
		logging.Query(query),
		logging.Count(len(entries)),
		slog.String("project", p.opts.Project),
		slog.String("logstore", p.opts.Logstore))

	return &audit.UnitResult{UnitID: p.opts.UnitID, Entries: entries, BackendQuery: query}, nil
}

func (p *Provider) ensureLogstore(ctx context.Context) error {
	key := p.opts.Project + "/" + p.opts.Logstore
	exists, err := p.logstores.GetOrLoad(ctx, key, func(ctx context.Context) (bool, error) {
		return call(ctx, func() (bool, error) {
			return p.client.CheckLogstoreExist(p.opts.Project, p.opts.Logstore)
		})
	})
	if err != nil {
		return fmt.Errorf("checking logstore: %w", err)
	}
	if !exists {
		return fmt.Errorf("logstore %q not found in project %q (region %s)", p.opts.Logstore, p.opts.Project, p.opts.Region)
	}
	return nil
}

// Close implements provider.Provider.
func (p *Provider) Close() error {
	cacheErr := p.logstores.Close()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("closing SLS client: %w", err)
	}
	return cacheErr
}

// BuildQuery translates filter into SLS search syntax.
func BuildQuery(filter audit.QueryFilter) string {
	var b strings.Builder
	b.WriteString("*")

	if !audit.IsWildcard(filter.User) {
		fmt.Fprintf(&b, " and user.username: %s", strings.TrimSpace(filter.User))
	}
	if !audit.IsWildcard(filter.Namespace) {
		fmt.Fprintf(&b, " and objectRef.namespace: %s", strings.TrimSpace(filter.Namespace))
	}
	if verbs := audit.Constraint(audit.NormalizeVerbs(filter.Verbs)); len(verbs) > 0 {
		b.WriteString(" and (" + orTerms("verb", verbs) + ")")
	}
	if types := audit.Constraint(audit.NormalizeResourceTypes(filter.ResourceTypes)); len(types) > 0 {
		b.WriteString(" and (" + orTerms("objectRef.resource", types) + ")")
	}
	if !audit.IsWildcard(filter.ResourceName) {
		fmt.Fprintf(&b, " and objectRef.name: %s", strings.TrimSpace(filter.ResourceName))
	}
	return b.String()
}

func orTerms(field string, values []string) string {
	terms := make([]string, len(values))
	for i, v := range values {
		terms[i] = fmt.Sprintf("%s: %q", field, v)
	}
	return strings.Join(terms, " or ")
}

// jsonFields are stored by the SLS audit pipeline as JSON strings. The
// fallback builds a value from the raw string when it does not decode.
var jsonFields = []struct {
	key      string
	fallback func(raw string) any
}{
	{"user", func(raw string) any { return normalize.MapOf("username", raw) }},
	{"objectRef", func(raw string) any { return normalize.MapOf("resource", raw) }},
	{"responseStatus", func(string) any { return normalize.MapOf("code", 0) }},
	{"annotations", func(raw string) any { return raw }},
	{"sourceIPs", func(raw string) any { return []any{raw} }},
	{"requestObject", func(raw string) any { return raw }},
	{"responseObject", func(raw string) any { return raw }},
}

// plainFields maps canonical keys to SLS columns copied verbatim.
var plainFields = []struct {
	key, column string
}{
	{"verb", "verb"},
	{"timestamp", "requestReceivedTimestamp"},
	{"kind", "kind"},
	{"apiVersion", "apiVersion"},
	{"auditID", "auditID"},
	{"level", "level"},
	{"requestURI", "requestURI"},
	{"userAgent", "userAgent"},
	{"stage", "stage"},
	{"stageTimestamp", "stageTimestamp"},
}

// DecodeEntry converts one SLS log row into a canonical audit record.
func DecodeEntry(raw map[string]string) *normalize.Map {
	out := normalize.NewMap()
	for _, f := range jsonFields {
		s, ok := raw[f.key]
		if !ok {
			continue
		}
		out.Set(f.key, decodeJSON(s, f.fallback))
	}
	for _, f := range plainFields {
		out.Set(f.key, raw[f.column])
	}
	return out
}

func decodeJSON(s string, fallback func(string) any) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return fallback(s)
	}
	n, err := normalize.Normalize(v)
	if err != nil {
		return fallback(s)
	}
	return n
}
