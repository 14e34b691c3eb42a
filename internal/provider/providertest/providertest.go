// Package providertest provides an in-memory Provider and a helper that
// opens a Registry over it, for tests of packages above the registry.
package providertest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/mcp-kube-audit/internal/audit"
	"github.com/giantswarm/mcp-kube-audit/internal/config"
	"github.com/giantswarm/mcp-kube-audit/internal/provider"
)

// Type is the provider type Stubs are registered under.
const Type = "stub"

// Stub answers every query with Entries, or fails with Err.
type Stub struct {
	Name        string
	Description string
	Entries     []any
	Err         error
	// Delay holds the query until it elapses or ctx is done.
	Delay time.Duration

	mu     sync.Mutex
	calls  int
	last   audit.QueryFilter
	closed bool
}

// Query implements provider.Provider.
func (s *Stub) Query(ctx context.Context, filter audit.QueryFilter) (*audit.UnitResult, error) {
	s.mu.Lock()
	s.calls++
	s.last = filter
	s.mu.Unlock()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, audit.NewProviderQueryError(s.Name, ctx.Err())
		}
	}
	if s.Err != nil {
		return nil, audit.NewProviderQueryError(s.Name, s.Err)
	}

	entries := s.Entries
	if len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return &audit.UnitResult{
		UnitID:       s.Name,
		Entries:      append([]any{}, entries...),
		BackendQuery: "stub query for " + s.Name,
	}, nil
}

// Close implements provider.Provider.
func (s *Stub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Calls returns how many times Query ran.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastFilter returns the filter of the most recent Query.
func (s *Stub) LastFilter() audit.QueryFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Closed reports whether Close was called.
func (s *Stub) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// OpenRegistry opens a Registry with one cluster per stub, in order. The
// registry is closed when the test ends.
func OpenRegistry(t testing.TB, defaultCluster string, stubs ...*Stub) *provider.Registry {
	t.Helper()

	byName := make(map[string]*Stub, len(stubs))
	cfg := &config.Config{DefaultCluster: defaultCluster}
	for _, s := range stubs {
		byName[s.Name] = s
		cfg.Clusters = append(cfg.Clusters, config.ClusterBinding{
			Name:         s.Name,
			ProviderType: Type,
			Params:       config.Params{},
			Description:  s.Description,
		})
	}

	table := provider.NewTable()
	table.Register(Type, func(_ context.Context, b config.ClusterBinding, _ provider.Dependencies) (provider.Provider, error) {
		return byName[b.Name], nil
	}, nil)

	reg, err := provider.Open(context.Background(), cfg,
		provider.WithTable(table),
		provider.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("open stub registry: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}
