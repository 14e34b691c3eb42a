package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/giantswarm/mcp-kube-audit/internal/audit"
	"github.com/giantswarm/mcp-kube-audit/internal/config"
)

// Provider answers audit queries for the single cluster it is bound to.
//
// Implementations must be safe for concurrent use: the fan-out executor may
// call Query from several requests at once.
type Provider interface {
	// Query translates filter into the backend's query language, runs it and
	// returns at most filter.Limit canonical entries. Failures are returned
	// as *audit.ProviderQueryError; an empty result is not an error.
	Query(ctx context.Context, filter audit.QueryFilter) (*audit.UnitResult, error)

	// Close releases network handles and background goroutines.
	Close() error
}

// Dependencies are the collaborators handed to every factory.
type Dependencies struct {
	Logger *slog.Logger
	// Getenv reads credentials supplied by the environment.
	Getenv func(string) string
	// Now is the clock used to resolve relative time windows.
	Now func() time.Time
	// CacheMetrics receives hit/miss events from provider-owned caches.
	CacheMetrics CacheMetricsRecorder
}

// CacheMetricsRecorder records cache events for provider-owned caches.
type CacheMetricsRecorder interface {
	RecordCacheEvent(ctx context.Context, cache, event string)
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Factory constructs a Provider for one cluster binding.
type Factory func(ctx context.Context, binding config.ClusterBinding, deps Dependencies) (Provider, error)

// ParamsValidator checks provider-specific params at config load time.
// Violation paths are relative to the provider block.
type ParamsValidator func(params config.Params) []config.Violation

type registration struct {
	factory  Factory
	validate ParamsValidator
}

// Table maps provider types to factories. It implements config.Catalog so
// the loader can reject unknown types before anything is constructed.
type Table struct {
	mu      sync.RWMutex
	entries map[string]registration
}

// NewTable returns an empty factory table.
func NewTable() *Table {
	return &Table{entries: map[string]registration{}}
}

var _ config.Catalog = (*Table)(nil)

// Register adds a factory for providerType. validate may be nil.
// It panics if providerType is already registered.
func (t *Table) Register(providerType string, factory Factory, validate ParamsValidator) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[providerType]; exists {
		panic(fmt.Sprintf("provider already registered for type '%s'", providerType))
	}
	t.entries[providerType] = registration{factory: factory, validate: validate}
}

// Has implements config.Catalog.
func (t *Table) Has(providerType string) bool {
	_, ok := t.lookup(providerType)
	return ok
}

// ValidateParams implements config.Catalog.
func (t *Table) ValidateParams(providerType string, params config.Params) []config.Violation {
	reg, ok := t.lookup(providerType)
	if !ok || reg.validate == nil {
		return nil
	}
	return reg.validate(params)
}

// Types returns a sorted list of all registered provider types.
func (t *Table) Types() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	types := make([]string, 0, len(t.entries))
	for k := range t.entries {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}

func (t *Table) lookup(providerType string) (registration, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	reg, ok := t.entries[providerType]
	return reg, ok
}

var defaultTable = NewTable()

// RegisterProvider registers a factory in the process-wide table.
// This should be called from init() functions in provider implementation
// packages. Panics if providerType is already registered.
func RegisterProvider(providerType string, factory Factory, validate ParamsValidator) {
	defaultTable.Register(providerType, factory, validate)
}

// DefaultTable returns the process-wide factory table.
func DefaultTable() *Table {
	return defaultTable
}

// RegisteredTypes returns the sorted provider types of the process-wide table.
func RegisteredTypes() []string {
	return defaultTable.Types()
}
