package fanout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-kube-audit/internal/audit"
	"github.com/giantswarm/mcp-kube-audit/internal/provider"
)

type stubProvider struct {
	entries []any
	err     error
	delay   time.Duration
	panics  bool
	block   bool
	nilRes  bool

	inFlight *atomic.Int32
	maxSeen  *atomic.Int32

	mu       sync.Mutex
	received []audit.QueryFilter
}

func (s *stubProvider) Query(ctx context.Context, f audit.QueryFilter) (*audit.UnitResult, error) {
	s.mu.Lock()
	s.received = append(s.received, f)
	s.mu.Unlock()

	if s.inFlight != nil {
		n := s.inFlight.Add(1)
		defer s.inFlight.Add(-1)
		for {
			seen := s.maxSeen.Load()
			if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
				break
			}
		}
	}

	if s.panics {
		panic("backend SDK exploded")
	}
	if s.block {
		time.Sleep(time.Second)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.nilRes {
		return nil, nil
	}
	return &audit.UnitResult{Entries: s.entries, BackendQuery: "q"}, nil
}

func (s *stubProvider) Close() error { return nil }

type stubResolver struct {
	def       string
	providers map[string]*stubProvider
}

func (r *stubResolver) Get(name string) (provider.Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		var names []string
		for n := range r.providers {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, &audit.UnknownClusterError{Name: name, Available: names}
	}
	return p, nil
}

func (r *stubResolver) DefaultCluster() string { return r.def }

func (r *stubResolver) ProviderType(name string) (string, bool) {
	_, ok := r.providers[name]
	return "stub", ok
}

type recordingMetrics struct {
	mu       sync.Mutex
	statuses map[string]string
	fanouts  [][2]int
}

func (m *recordingMetrics) RecordUnitQuery(_ context.Context, cluster, _, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses == nil {
		m.statuses = map[string]string{}
	}
	m.statuses[cluster] = status
}

func (m *recordingMetrics) RecordFanout(_ context.Context, units, failed int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fanouts = append(m.fanouts, [2]int{units, failed})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newExecutor(r Resolver, opts ...Option) *Executor {
	return NewExecutor(r, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func TestExecute_PartialFailure(t *testing.T) {
	resolver := &stubResolver{
		def: "cn-hangzhou",
		providers: map[string]*stubProvider{
			"cn-hangzhou": {entries: []any{"a", "b"}},
			"cn-shanghai": {err: errors.New("connection refused")},
		},
	}
	metrics := &recordingMetrics{}
	e := newExecutor(resolver, WithMetrics(metrics))

	res, err := e.Execute(context.Background(), audit.QueryFilter{
		TargetUnits: []string{"cn-hangzhou", "cn-shanghai"},
		Limit:       10,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []any{"a", "b"}, res.Entries)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "cn-shanghai", res.Errors[0].UnitID)
	assert.Contains(t, res.Errors[0].Message, "connection refused")
	assert.Equal(t, []audit.UnitSummary{{UnitID: "cn-hangzhou", Count: 2, BackendQuery: "q"}}, res.Units)

	assert.Equal(t, map[string]string{"cn-hangzhou": "success", "cn-shanghai": "error"}, metrics.statuses)
	assert.Equal(t, [][2]int{{2, 1}}, metrics.fanouts)
}

func TestExecute_DispatchOrder(t *testing.T) {
	resolver := &stubResolver{
		def: "slow",
		providers: map[string]*stubProvider{
			"slow":   {entries: []any{"s1", "s2"}, delay: 50 * time.Millisecond},
			"fast":   {entries: []any{"f1"}},
			"medium": {entries: []any{"m1"}, delay: 20 * time.Millisecond},
		},
	}
	e := newExecutor(resolver)

	res, err := e.Execute(context.Background(), audit.QueryFilter{
		TargetUnits: []string{"slow", "fast", "medium"},
		Limit:       10,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"s1", "s2", "f1", "m1"}, res.Entries)
	assert.Equal(t, 4, res.Count)
	assert.Empty(t, res.Errors)
}

func TestExecute_DefaultsToDefaultCluster(t *testing.T) {
	def := &stubProvider{entries: []any{"x"}}
	other := &stubProvider{entries: []any{"y"}}
	resolver := &stubResolver{def: "c1", providers: map[string]*stubProvider{"c1": def, "c2": other}}
	e := newExecutor(resolver)

	res, err := e.Execute(context.Background(), audit.QueryFilter{Limit: 5, Namespace: "default"})
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, res.Entries)
	assert.Empty(t, other.received)

	require.Len(t, def.received, 1)
	assert.Equal(t, []string{"c1"}, def.received[0].TargetUnits)
	assert.Equal(t, "default", def.received[0].Namespace)
}

func TestExecute_UnknownUnitIsUnitLocal(t *testing.T) {
	resolver := &stubResolver{def: "c1", providers: map[string]*stubProvider{"c1": {entries: []any{"x"}}}}
	e := newExecutor(resolver)

	res, err := e.Execute(context.Background(), audit.QueryFilter{TargetUnits: []string{"ghost", "c1"}, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "ghost", res.Errors[0].UnitID)
	assert.Contains(t, res.Errors[0].Message, "list_clusters")
}

func TestExecute_Deduplicates(t *testing.T) {
	p := &stubProvider{entries: []any{"x"}}
	resolver := &stubResolver{def: "c1", providers: map[string]*stubProvider{"c1": p}}
	e := newExecutor(resolver)

	res, err := e.Execute(context.Background(), audit.QueryFilter{TargetUnits: []string{"c1", " c1", "", "c1"}, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Len(t, p.received, 1)
}

func TestExecute_UnitTimeout(t *testing.T) {
	resolver := &stubResolver{
		def: "ok",
		providers: map[string]*stubProvider{
			"ok":       {entries: []any{"x"}},
			"slow":     {delay: time.Second},
			"stubborn": {block: true, entries: []any{"late"}},
		},
	}
	metrics := &recordingMetrics{}
	e := newExecutor(resolver, WithUnitTimeout(30*time.Millisecond), WithMetrics(metrics))

	started := time.Now()
	res, err := e.Execute(context.Background(), audit.QueryFilter{TargetUnits: []string{"ok", "slow", "stubborn"}, Limit: 5})
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 500*time.Millisecond, "a unit ignoring its context must not hold the call")

	assert.Equal(t, []any{"x"}, res.Entries)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "query on slow timed out", res.Errors[0].Message)
	assert.Equal(t, "query on stubborn timed out", res.Errors[1].Message)
	assert.Equal(t, "timeout", metrics.statuses["slow"])
}

func TestExecute_ProviderMisbehaviour(t *testing.T) {
	resolver := &stubResolver{
		def: "ok",
		providers: map[string]*stubProvider{
			"ok":     {entries: []any{"1", "2", "3", "4"}},
			"panics": {panics: true},
			"nil":    {nilRes: true},
		},
	}
	e := newExecutor(resolver)

	res, err := e.Execute(context.Background(), audit.QueryFilter{TargetUnits: []string{"panics", "nil", "ok"}, Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, []any{"1", "2"}, res.Entries, "entries beyond the limit are dropped")
	assert.Equal(t, 2, res.Count)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0].Message, "provider panicked")
	assert.Contains(t, res.Errors[1].Message, "no result")
}

func TestExecute_AllUnitsFailed(t *testing.T) {
	resolver := &stubResolver{
		def: "a",
		providers: map[string]*stubProvider{
			"a": {err: errors.New("down")},
			"b": {err: errors.New("down")},
		},
	}
	filter := audit.QueryFilter{TargetUnits: []string{"a", "b"}, Limit: 5}

	t.Run("aggregate by default", func(t *testing.T) {
		res, err := newExecutor(resolver).Execute(context.Background(), filter)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Count)
		assert.Len(t, res.Errors, 2)
	})

	t.Run("error when configured", func(t *testing.T) {
		res, err := newExecutor(resolver, WithFailOnAllUnitsFailed(true)).Execute(context.Background(), filter)
		require.ErrorIs(t, err, ErrAllUnitsFailed)
		require.NotNil(t, res)
		assert.Len(t, res.Errors, 2)
	})
}

func TestExecute_InvalidFilter(t *testing.T) {
	p := &stubProvider{}
	resolver := &stubResolver{def: "c1", providers: map[string]*stubProvider{"c1": p}}
	e := newExecutor(resolver)

	tests := []audit.QueryFilter{
		{Limit: 0},
		{Limit: 5, StartTime: "1h", EndTime: "2020-01-01T00:00:00Z"},
		{Limit: 5, StartTime: "tomorrow"},
	}
	for _, f := range tests {
		res, err := e.Execute(context.Background(), f)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, audit.ErrInvalidFilter)
	}
	assert.Empty(t, p.received, "no unit may be dispatched for an invalid filter")
}

func TestExecute_MaxConcurrency(t *testing.T) {
	var inFlight, maxSeen atomic.Int32
	providers := map[string]*stubProvider{}
	var targets []string
	for _, name := range []string{"u1", "u2", "u3", "u4", "u5", "u6"} {
		providers[name] = &stubProvider{
			entries:  []any{name},
			delay:    20 * time.Millisecond,
			inFlight: &inFlight,
			maxSeen:  &maxSeen,
		}
		targets = append(targets, name)
	}
	e := newExecutor(&stubResolver{def: "u1", providers: providers}, WithMaxConcurrency(2))

	res, err := e.Execute(context.Background(), audit.QueryFilter{TargetUnits: targets, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, []any{"u1", "u2", "u3", "u4", "u5", "u6"}, res.Entries)
	assert.LessOrEqual(t, maxSeen.Load(), int32(2))
}

func TestExecute_ConcurrentCallsAreIndependent(t *testing.T) {
	resolver := &stubResolver{
		def: "a",
		providers: map[string]*stubProvider{
			"a": {entries: []any{"a"}, delay: 10 * time.Millisecond},
			"b": {entries: []any{"b"}, delay: 5 * time.Millisecond},
		},
	}
	e := newExecutor(resolver)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Execute(context.Background(), audit.QueryFilter{TargetUnits: []string{"a", "b"}, Limit: 5})
			assert.NoError(t, err)
			assert.Equal(t, []any{"a", "b"}, res.Entries)
		}()
	}
	wg.Wait()
}

func TestUnits(t *testing.T) {
	e := newExecutor(&stubResolver{def: "home"})
	assert.Equal(t, []string{"home"}, e.Units(nil))
	assert.Equal(t, []string{"home"}, e.Units([]string{" ", ""}))
	assert.Equal(t, []string{"b", "a"}, e.Units([]string{"b", "a", "b"}))
}
