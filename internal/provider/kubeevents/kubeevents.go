package kubeevents

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/client-go/kubernetes"

	"github.com/giantswarm/mcp-kube-audit/internal/audit"
	"github.com/giantswarm/mcp-kube-audit/internal/config"
	"github.com/giantswarm/mcp-kube-audit/internal/k8s"
	"github.com/giantswarm/mcp-kube-audit/internal/logging"
	"github.com/giantswarm/mcp-kube-audit/internal/normalize"
	"github.com/giantswarm/mcp-kube-audit/internal/provider"
)

// Type is the provider name used in cluster config.
const Type = "kubernetes_events"

// Param keys and defaults.
const (
	ParamKubeconfig    = "kubeconfig"
	ParamContext       = "context"
	ParamInCluster     = "in_cluster"
	ParamPageSize      = "page_size"
	ParamDefaultWindow = "default_window"

	DefaultPageSize = 100
	MaxPageSize     = 500
)

func init() {
	provider.RegisterProvider(Type, New, ValidateParams)
}

// ValidateParams checks the provider block of a kubernetes_events cluster.
func ValidateParams(p config.Params) []config.Violation {
	var vs []config.Violation

	inCluster, err := p.Bool(ParamInCluster, false)
	vs = append(vs, config.CheckErr(ParamInCluster, err)...)
	if inCluster {
		if _, ok := p.String(ParamKubeconfig); ok {
			vs = append(vs, config.Violation{Path: ParamKubeconfig, Message: "cannot be combined with in_cluster"})
		}
	}

	size, err := p.Int(ParamPageSize, DefaultPageSize)
	switch {
	case err != nil:
		vs = append(vs, config.CheckErr(ParamPageSize, err)...)
	case size < 1 || size > MaxPageSize:
		vs = append(vs, config.Violation{Path: ParamPageSize, Message: fmt.Sprintf("must be between 1 and %d", MaxPageSize)})
	}

	_, err = p.Duration(ParamDefaultWindow, audit.DefaultTimeWindow)
	vs = append(vs, config.CheckErr(ParamDefaultWindow, err)...)
	return vs
}

// EventLister lists core/v1 Events. An empty namespace lists all namespaces.
type EventLister interface {
	List(ctx context.Context, namespace string, opts metav1.ListOptions) (*corev1.EventList, error)
}

type clientsetLister struct {
	cs kubernetes.Interface
}

func (l clientsetLister) List(ctx context.Context, namespace string, opts metav1.ListOptions) (*corev1.EventList, error) {
	return l.cs.CoreV1().Events(namespace).List(ctx, opts)
}

// NewClientsetLister adapts a clientset to EventLister.
func NewClientsetLister(cs kubernetes.Interface) EventLister {
	return clientsetLister{cs: cs}
}

// Options holds the resolved settings of one events provider.
type Options struct {
	UnitID        string
	PageSize      int
	DefaultWindow time.Duration
}

// Provider answers audit queries from the Kubernetes Events API of a live
// cluster. Events carry no request verb, so verb filters do not apply.
type Provider struct {
	lister EventLister
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

var _ provider.Provider = (*Provider)(nil)

// New is the provider.Factory for kubernetes_events.
func New(_ context.Context, binding config.ClusterBinding, deps provider.Dependencies) (provider.Provider, error) {
	if vs := ValidateParams(binding.Params); len(vs) > 0 {
		return nil, fmt.Errorf("cluster %q: %s: %s", binding.Name, vs[0].Path, vs[0].Message)
	}
	p := binding.Params
	inCluster, _ := p.Bool(ParamInCluster, false)
	size, _ := p.Int(ParamPageSize, DefaultPageSize)
	window, _ := p.Duration(ParamDefaultWindow, audit.DefaultTimeWindow)

	cs, err := k8s.NewClientset(k8s.ClientConfig{
		KubeconfigPath: p.StringOr(ParamKubeconfig, ""),
		Context:        p.StringOr(ParamContext, ""),
		InCluster:      inCluster,
		Logger:         deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("cluster %q: %w", binding.Name, err)
	}

	return NewWithLister(NewClientsetLister(cs), Options{
		UnitID:        binding.Name,
		PageSize:      size,
		DefaultWindow: window,
	}, deps), nil
}

// NewWithLister builds a Provider around an existing lister.
func NewWithLister(lister EventLister, opts Options, deps provider.Dependencies) *Provider {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.DefaultWindow <= 0 {
		opts.DefaultWindow = audit.DefaultTimeWindow
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{
		lister: lister,
		opts:   opts,
		logger: logger.With(logging.Cluster(opts.UnitID), logging.Provider(Type)),
		now:    now,
	}
}

// Query implements provider.Provider.
func (p *Provider) Query(ctx context.Context, filter audit.QueryFilter) (*audit.UnitResult, error) {
	start, end, err := filter.Window(p.now(), p.opts.DefaultWindow)
	if err != nil {
		return nil, audit.NewProviderQueryError(p.opts.UnitID, err)
	}

	q := Translate(filter)
	limit := audit.ClampLimit(filter.Limit)

	// The Events API lists in storage order, so every page in the window is
	// read before the newest limit events are kept.
	var matched []corev1.Event
	listOpts := metav1.ListOptions{FieldSelector: q.FieldSelector, Limit: int64(p.opts.PageSize)}
	for {
		list, err := p.lister.List(ctx, q.Namespace, listOpts)
		if err != nil {
			return nil, audit.NewProviderQueryError(p.opts.UnitID, fmt.Errorf("listing events: %w", err))
		}
		for _, ev := range list.Items {
			ts := EventTime(&ev)
			if ts.Before(start) || ts.After(end) || !q.Matches(&ev) {
				continue
			}
			matched = append(matched, ev)
		}
		if list.Continue == "" {
			break
		}
		listOpts.Continue = list.Continue
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return EventTime(&matched[i]).After(EventTime(&matched[j]))
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}

	entries := make([]any, 0, len(matched))
	for i := range matched {
		ev := &matched[i]
		ev.TypeMeta = metav1.TypeMeta{Kind: "Event", APIVersion: "v1"}
		ev.ManagedFields = nil
		rec, err := normalize.Normalize(ev)
		if err != nil {
			return nil, audit.NewProviderQueryError(p.opts.UnitID, err)
		}
		entries = append(entries, rec)
	}

	if len(filter.Verbs) > 0 {
		p.logger.Debug("Ignoring verb filter for events provider", slog.Any("verbs", filter.Verbs))
	}
	p.logger.Debug("Events query completed", logging.Query(q.String()), logging.Count(len(entries)))

	return &audit.UnitResult{UnitID: p.opts.UnitID, Entries: entries, BackendQuery: q.String()}, nil
}

// Close implements provider.Provider.
func (p *Provider) Close() error {
	return nil
}

// Query is a translated events query: a server-side field selector plus
// client-side filters the Events API cannot express. Suffix wildcards
// ("kube-*") are never sent as field selectors; they are kept as
// patterns and matched by prefix.
type Query struct {
	Namespace        string
	FieldSelector    string
	NamespacePattern string
	NamePattern      string
	Kinds            []string
	User             string
}

// Translate converts filter into an events Query.
func Translate(filter audit.QueryFilter) Query {
	var q Query
	var selectors []fields.Selector

	if _, ok := audit.SuffixWildcard(filter.Namespace); ok {
		q.NamespacePattern = strings.TrimSpace(filter.Namespace)
	} else if !audit.IsWildcard(filter.Namespace) {
		q.Namespace = strings.TrimSpace(filter.Namespace)
		selectors = append(selectors, fields.OneTermEqualSelector("involvedObject.namespace", q.Namespace))
	}
	if _, ok := audit.SuffixWildcard(filter.ResourceName); ok {
		q.NamePattern = strings.TrimSpace(filter.ResourceName)
	} else if !audit.IsWildcard(filter.ResourceName) {
		selectors = append(selectors, fields.OneTermEqualSelector("involvedObject.name", strings.TrimSpace(filter.ResourceName)))
	}
	if len(selectors) > 0 {
		q.FieldSelector = fields.AndSelectors(selectors...).String()
	}

	for _, rt := range audit.Constraint(audit.NormalizeResourceTypes(filter.ResourceTypes)) {
		if kind, ok := audit.KindForResource(rt); ok {
			q.Kinds = append(q.Kinds, kind)
		} else {
			q.Kinds = append(q.Kinds, rt)
		}
	}
	if !audit.IsWildcard(filter.User) {
		q.User = strings.TrimSpace(filter.User)
	}
	return q
}

// Matches applies the client-side filters to ev.
func (q Query) Matches(ev *corev1.Event) bool {
	if len(q.Kinds) > 0 {
		ok := false
		for _, k := range q.Kinds {
			if strings.EqualFold(k, ev.InvolvedObject.Kind) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if q.NamespacePattern != "" && !audit.MatchPattern(q.NamespacePattern, ev.InvolvedObject.Namespace) {
		return false
	}
	if q.NamePattern != "" && !audit.MatchPattern(q.NamePattern, ev.InvolvedObject.Name) {
		return false
	}
	if q.User != "" && !audit.MatchPattern(q.User, ev.ReportingController) && !audit.MatchPattern(q.User, ev.Source.Component) {
		return false
	}
	return true
}

// String renders the query for diagnostics.
func (q Query) String() string {
	path := "/api/v1/events"
	if q.Namespace != "" {
		path = "/api/v1/namespaces/" + q.Namespace + "/events"
	}
	var b strings.Builder
	b.WriteString("GET " + path)
	if q.FieldSelector != "" {
		b.WriteString("?fieldSelector=" + q.FieldSelector)
	}
	if q.NamespacePattern != "" {
		b.WriteString(" | involvedObject.namespace=" + q.NamespacePattern)
	}
	if q.NamePattern != "" {
		b.WriteString(" | involvedObject.name=" + q.NamePattern)
	}
	if len(q.Kinds) > 0 {
		b.WriteString(" | involvedObject.kind in (" + strings.Join(q.Kinds, ",") + ")")
	}
	if q.User != "" {
		b.WriteString(" | reportingController=" + q.User)
	}
	return b.String()
}

// EventTime returns the most recent timestamp recorded on ev.
func EventTime(ev *corev1.Event) time.Time {
	switch {
	case !ev.LastTimestamp.IsZero():
		return ev.LastTimestamp.Time
	case !ev.EventTime.IsZero():
		return ev.EventTime.Time
	case !ev.FirstTimestamp.IsZero():
		return ev.FirstTimestamp.Time
	default:
		return ev.CreationTimestamp.Time
	}
}
