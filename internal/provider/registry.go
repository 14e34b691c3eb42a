package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/giantswarm/mcp-kube-audit/internal/audit"
	"github.com/giantswarm/mcp-kube-audit/internal/config"
	"github.com/giantswarm/mcp-kube-audit/internal/logging"
)

// ErrRegistryClosed is returned by Get after Close.
var ErrRegistryClosed = errors.New("provider registry is closed")

// ClusterInfo describes a configured cluster without exposing its params.
type ClusterInfo struct {
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	Description string `json:"description"`
	Default     bool   `json:"default"`
}

type entry struct {
	binding  config.ClusterBinding
	provider Provider
}

// Registry owns one live Provider per configured cluster. It is read-only
// after Open returns, so concurrent lookups need no locking.
type Registry struct {
	defaultCluster string
	order          []string
	entries        map[string]entry

	logger *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	table *Table
	deps  Dependencies
}

// WithTable uses t instead of the process-wide factory table.
func WithTable(t *Table) Option {
	return func(o *openOptions) { o.table = t }
}

// WithLogger sets the logger used by the registry and passed to factories.
func WithLogger(logger *slog.Logger) Option {
	return func(o *openOptions) { o.deps.Logger = logger }
}

// WithDependencies sets the collaborators passed to every factory.
func WithDependencies(deps Dependencies) Option {
	return func(o *openOptions) {
		logger := o.deps.Logger
		o.deps = deps
		if deps.Logger == nil {
			o.deps.Logger = logger
		}
	}
}

// Open builds a provider for every binding in cfg, in binding order. If any
// construction fails, providers already built are closed and no registry is
// returned. Callers must Close the returned registry.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Registry, error) {
	o := &openOptions{table: defaultTable}
	for _, opt := range opts {
		opt(o)
	}
	o.deps = o.deps.withDefaults()

	if cfg == nil || len(cfg.Clusters) == 0 {
		return nil, config.NewValidationError("clusters", "must contain at least one cluster")
	}

	r := &Registry{
		defaultCluster: cfg.DefaultCluster,
		entries:        make(map[string]entry, len(cfg.Clusters)),
		logger:         o.deps.Logger,
	}

	var built []entry
	abort := func(cause error) (*Registry, error) {
		if err := closeEntries(built); err != nil {
			cause = errors.Join(cause, err)
		}
		return nil, cause
	}

	for i, b := range cfg.Clusters {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}
		if _, dup := r.entries[b.Name]; dup {
			return abort(config.NewValidationError(fmt.Sprintf("clusters[%d].name", i),
				fmt.Sprintf("duplicate cluster name %q", b.Name)))
		}

		reg, ok := o.table.lookup(b.ProviderType)
		if !ok {
			return abort(config.NewValidationError(fmt.Sprintf("clusters[%d].provider.name", i),
				fmt.Sprintf("unsupported provider %q (supported: %v)", b.ProviderType, o.table.Types())))
		}

		p, err := reg.factory(ctx, b, o.deps)
		if err != nil {
			return abort(fmt.Errorf("failed to create %s provider for cluster %q: %w", b.ProviderType, b.Name, err))
		}

		e := entry{binding: b, provider: p}
		built = append(built, e)
		r.entries[b.Name] = e
		r.order = append(r.order, b.Name)

		r.logger.Debug("provider ready", logging.Cluster(b.Name), logging.Provider(b.ProviderType))
	}

	if _, ok := r.entries[r.defaultCluster]; !ok {
		return abort(config.NewValidationError("default_cluster",
			fmt.Sprintf("%q does not match any configured cluster", r.defaultCluster)))
	}

	r.logger.Info("provider registry opened",
		slog.Int("clusters", len(r.order)),
		slog.String("default_cluster", r.defaultCluster))
	return r, nil
}

// Get returns the provider bound to name.
func (r *Registry) Get(name string) (Provider, error) {
	if r.closed.Load() {
		return nil, ErrRegistryClosed
	}
	e, ok := r.entries[name]
	if !ok {
		available := slices.Clone(r.order)
		slices.Sort(available)
		return nil, &audit.UnknownClusterError{Name: name, Available: available}
	}
	return e.provider, nil
}

// DefaultCluster returns the name of the default cluster.
func (r *Registry) DefaultCluster() string {
	return r.defaultCluster
}

// AllUnitIDs returns every configured cluster name in binding order.
func (r *Registry) AllUnitIDs() []string {
	return slices.Clone(r.order)
}

// Clusters describes every configured cluster in binding order.
func (r *Registry) Clusters() []ClusterInfo {
	out := make([]ClusterInfo, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, ClusterInfo{
			Name:        name,
			Provider:    r.entries[name].binding.ProviderType,
			Description: r.entries[name].binding.Description,
			Default:     name == r.defaultCluster,
		})
	}
	return out
}

// ProviderType returns the provider type bound to name.
func (r *Registry) ProviderType(name string) (string, bool) {
	e, ok := r.entries[name]
	return e.binding.ProviderType, ok
}

// Close releases every provider. A failure to close one provider does not
// stop the others from being closed; all failures are returned joined.
// Close is idempotent.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		entries := make([]entry, 0, len(r.order))
		for _, name := range r.order {
			entries = append(entries, r.entries[name])
		}
		r.closeErr = closeEntries(entries)
		if r.closeErr != nil {
			r.logger.Warn("provider registry closed with errors", logging.Err(r.closeErr))
		} else {
			r.logger.Info("provider registry closed")
		}
	})
	return r.closeErr
}

func closeEntries(entries []entry) error {
	var errs []error
	for _, e := range entries {
		if err := closeProvider(e.provider); err != nil {
			errs = append(errs, fmt.Errorf("close provider for cluster %q: %w", e.binding.Name, err))
		}
	}
	return errors.Join(errs...)
}

// closeProvider turns a panicking Close into an error so the remaining
// providers are still released.
func closeProvider(p Provider) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during close: %v", rec)
		}
	}()
	return p.Close()
}
