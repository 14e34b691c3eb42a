package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/mcp-kube-audit/internal/audit"
	"github.com/giantswarm/mcp-kube-audit/internal/instrumentation"
	"github.com/giantswarm/mcp-kube-audit/internal/logging"
	"github.com/giantswarm/mcp-kube-audit/internal/provider"
)

// ErrAllUnitsFailed is returned alongside the aggregate when every
// dispatched unit failed and WithFailOnAllUnitsFailed(true) is set.
var ErrAllUnitsFailed = errors.New("all units failed")

// Defaults for Executor options.
const (
	DefaultUnitTimeout    = 30 * time.Second
	DefaultMaxConcurrency = 8
)

// Resolver maps unit ids to providers. *provider.Registry satisfies it.
type Resolver interface {
	Get(name string) (provider.Provider, error)
	DefaultCluster() string
	ProviderType(name string) (string, bool)
}

// MetricsRecorder receives per-unit and per-call measurements.
// *instrumentation.Metrics satisfies it.
type MetricsRecorder interface {
	RecordUnitQuery(ctx context.Context, cluster, providerType, status string, duration time.Duration)
	RecordFanout(ctx context.Context, units, failed int, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordUnitQuery(context.Context, string, string, string, time.Duration) {}
func (noopMetrics) RecordFanout(context.Context, int, int, time.Duration)                  {}

// Executor dispatches one query to many units concurrently and merges the
// outcomes. A failing unit never aborts the others.
type Executor struct {
	resolver Resolver

	unitTimeout      time.Duration
	maxConcurrency   int
	failOnAllFailing bool

	logger  *slog.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithUnitTimeout bounds each unit's query. Non-positive values keep the default.
func WithUnitTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.unitTimeout = d
		}
	}
}

// WithMaxConcurrency caps the number of units queried at once.
// Non-positive values keep the default.
func WithMaxConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

// WithFailOnAllUnitsFailed makes Execute return ErrAllUnitsFailed, together
// with the aggregate, when no dispatched unit succeeded.
func WithFailOnAllUnitsFailed(enabled bool) Option {
	return func(e *Executor) {
		e.failOnAllFailing = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Executor) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock sets the clock used to validate time windows.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExecutor returns an Executor resolving units through resolver.
func NewExecutor(resolver Resolver, opts ...Option) *Executor {
	e := &Executor{
		resolver:       resolver,
		unitTimeout:    DefaultUnitTimeout,
		maxConcurrency: DefaultMaxConcurrency,
		logger:         slog.Default(),
		metrics:        noopMetrics{},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type outcome struct {
	result *audit.UnitResult
	err    error
}

// Execute runs filter against every target unit, or the default cluster
// when TargetUnits is empty.
//
// Unit failures, including unknown unit ids, are reported in the aggregate's
// Errors. The returned error is non-nil only for an invalid filter, or for
// ErrAllUnitsFailed when that option is enabled.
func (e *Executor) Execute(ctx context.Context, filter audit.QueryFilter) (*audit.AggregateResult, error) {
	if err := filter.Validate(e.now()); err != nil {
		return nil, err
	}

	started := time.Now()
	units := e.Units(filter.TargetUnits)
	outcomes := make([]outcome, len(units))

	var g errgroup.Group
	g.SetLimit(e.maxConcurrency)
	for i, unit := range units {
		g.Go(func() error {
			outcomes[i] = e.runUnit(ctx, unit, filter.ForUnit(unit))
			return nil
		})
	}
	_ = g.Wait()

	agg := audit.NewAggregateResult()
	for i, o := range outcomes {
		if o.err != nil {
			agg.AddError(units[i], o.err)
			continue
		}
		agg.AddUnit(o.result)
	}

	duration := time.Since(started)
	e.metrics.RecordFanout(ctx, len(units), len(agg.Errors), duration)
	e.logger.Info("Fan-out query completed",
		logging.Operation("query_audit_log"),
		slog.String("units", strings.Join(units, ",")),
		slog.Int("failed", len(agg.Errors)),
		logging.Count(agg.Count),
		logging.Duration(duration))

	if e.failOnAllFailing && len(units) > 0 && len(agg.Errors) == len(units) {
		return agg, fmt.Errorf("%w: %d of %d units", ErrAllUnitsFailed, len(agg.Errors), len(units))
	}
	return agg, nil
}

// Units resolves the dispatch list: targets in order with blanks and
// duplicates dropped, or the default cluster when none remain.
func (e *Executor) Units(targets []string) []string {
	seen := make(map[string]struct{}, len(targets))
	units := make([]string, 0, len(targets))
	for _, t := range targets {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		units = append(units, t)
	}
	if len(units) == 0 {
		units = append(units, e.resolver.DefaultCluster())
	}
	return units
}

func (e *Executor) runUnit(ctx context.Context, unit string, filter audit.QueryFilter) outcome {
	started := time.Now()
	providerType, _ := e.resolver.ProviderType(unit)
	logger := e.logger.With(logging.Unit(unit), logging.Provider(providerType))

	ctx, span := instrumentation.StartUnitSpan(ctx, unit, providerType)
	defer span.End()

	p, err := e.resolver.Get(unit)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		e.metrics.RecordUnitQuery(ctx, unit, providerType, logging.StatusError, time.Since(started))
		logger.Warn("Unit could not be resolved", logging.Err(err))
		return outcome{err: err}
	}

	uctx, cancel := context.WithTimeout(ctx, e.unitTimeout)
	defer cancel()

	res, err := safeQuery(uctx, p, filter)
	if err == nil && res == nil {
		err = errors.New("provider returned no result")
	}
	duration := time.Since(started)

	if err != nil {
		pqe := audit.NewProviderQueryError(unit, err)
		status := logging.StatusError
		if pqe.Timeout() {
			status = logging.StatusTimeout
		}
		instrumentation.SetSpanError(span, pqe)
		e.metrics.RecordUnitQuery(ctx, unit, providerType, status, duration)
		logger.Warn("Unit query failed",
			logging.Status(status),
			logging.SanitizedErr(pqe),
			logging.Duration(duration))
		return outcome{err: pqe}
	}

	res.UnitID = unit
	if res.Entries == nil {
		res.Entries = []any{}
	}
	if len(res.Entries) > filter.Limit {
		logger.Warn("Provider returned more entries than requested; truncating",
			slog.Int("limit", filter.Limit), logging.Count(len(res.Entries)))
		res.Entries = res.Entries[:filter.Limit]
	}

	instrumentation.SetSpanSuccess(span)
	e.metrics.RecordUnitQuery(ctx, unit, providerType, logging.StatusSuccess, duration)
	logger.Debug("Unit query succeeded",
		logging.Count(len(res.Entries)),
		logging.Query(res.BackendQuery),
		logging.Duration(duration))
	return outcome{result: res}
}

// safeQuery runs the provider on its own goroutine so that the unit
// deadline holds even for providers that ignore ctx, and turns a provider
// panic into a unit-local error.
func safeQuery(ctx context.Context, p provider.Provider, filter audit.QueryFilter) (*audit.UnitResult, error) {
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("provider panicked: %v", r)}
			}
		}()
		res, err := p.Query(ctx, filter)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
