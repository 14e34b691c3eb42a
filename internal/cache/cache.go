package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache events reported to a MetricsRecorder.
const (
	EventHit          = "hit"
	EventMiss         = "miss"
	EventEvictLRU     = "evict_lru"
	EventEvictExpired = "evict_expired"
	EventEvictManual  = "evict_manual"
)

// Config holds configuration options for a Cache.
type Config struct {
	// Name labels metrics and log lines.
	Name string

	// TTL is the time-to-live of an entry. Expired entries are never
	// returned and are removed by the background cleanup.
	//
	// Default: 10 minutes.
	TTL time.Duration

	// MaxEntries caps the cache size. When exceeded, the least recently
	// accessed entry is evicted.
	//
	// Default: 1000.
	MaxEntries int

	// CleanupInterval is how often expired entries are swept.
	//
	// Default: 1 minute.
	CleanupInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:            "default",
		TTL:             10 * time.Minute,
		MaxEntries:      1000,
		CleanupInterval: 1 * time.Minute,
	}
}

// MetricsRecorder receives cache events. The instrumentation package's
// Metrics type satisfies it.
type MetricsRecorder interface {
	RecordCacheEvent(ctx context.Context, cache, event string)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) RecordCacheEvent(context.Context, string, string) {}

type item[V any] struct {
	value     V
	createdAt time.Time
	expiry    time.Time

	// lastAccessedNanos is updated under the read lock, hence atomic.
	lastAccessedNanos atomic.Int64
}

func (i *item[V]) isExpired(now time.Time) bool {
	return now.After(i.expiry)
}

func (i *item[V]) touch(now time.Time) {
	i.lastAccessedNanos.Store(now.UnixNano())
}

func (i *item[V]) lastAccessed() time.Time {
	return time.Unix(0, i.lastAccessedNanos.Load())
}

// Cache is a thread-safe TTL cache with LRU eviction and coalesced loads.
type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]*item[V]

	config  Config
	logger  *slog.Logger
	metrics MetricsRecorder

	loadGroup singleflight.Group

	stopCh chan struct{}
	wg     sync.WaitGroup
	closed bool

	now func() time.Time
}

// Option is a functional option for configuring a Cache.
type Option func(*options)

type options struct {
	config  Config
	logger  *slog.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// WithConfig sets the cache configuration.
func WithConfig(config Config) Option {
	return func(o *options) {
		o.config = config
	}
}

// WithLogger sets the logger for the cache.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the cache.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(o *options) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithClock sets the clock function.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates a Cache and starts its background cleanup goroutine.
// Callers must Close it.
func New[K comparable, V any](opts ...Option) *Cache[K, V] {
	o := &options{
		config:  DefaultConfig(),
		logger:  slog.Default(),
		metrics: noopMetricsRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	defaults := DefaultConfig()
	if o.config.Name == "" {
		o.config.Name = defaults.Name
	}
	if o.config.TTL <= 0 {
		o.config.TTL = defaults.TTL
	}
	if o.config.MaxEntries <= 0 {
		o.config.MaxEntries = defaults.MaxEntries
	}
	if o.config.CleanupInterval <= 0 {
		o.config.CleanupInterval = defaults.CleanupInterval
	}

	c := &Cache[K, V]{
		items:   make(map[K]*item[V]),
		config:  o.config,
		logger:  o.logger.With(slog.String("cache", o.config.Name)),
		metrics: o.metrics,
		stopCh:  make(chan struct{}),
		now:     o.now,
	}

	c.wg.Add(1)
	go c.cleanupLoop()

	c.logger.Debug("Cache initialized",
		"ttl", c.config.TTL,
		"max_entries", c.config.MaxEntries,
		"cleanup_interval", c.config.CleanupInterval)

	return c
}

// Get returns the live value stored under key.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, bool) {
	var zero V
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return zero, false
	}

	it, ok := c.items[key]
	if !ok || it.isExpired(now) {
		c.metrics.RecordCacheEvent(ctx, c.config.Name, EventMiss)
		return zero, false
	}

	it.touch(now)
	c.metrics.RecordCacheEvent(ctx, c.config.Name, EventHit)
	return it.value, true
}

// Set stores value under key, evicting the least recently used entry if the
// cache is full.
func (c *Cache[K, V]) Set(ctx context.Context, key K, value V) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	if _, exists := c.items[key]; !exists {
		c.evictIfNeededLocked(ctx)
	}

	it := &item[V]{
		value:     value,
		createdAt: now,
		expiry:    now.Add(c.config.TTL),
	}
	it.touch(now)
	c.items[key] = it
}

// GetOrLoad returns the cached value for key or calls load once, even under
// concurrent callers. The shared load runs detached from any one caller's
// cancellation; each caller stops waiting when its own ctx is done.
// Load errors are not cached.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, load func(ctx context.Context) (V, error)) (V, error) {
	var zero V
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.loadGroup.DoChan(fmt.Sprint(key), func() (any, error) {
		if v, ok := c.peek(key); ok {
			return v, nil
		}
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.Set(loadCtx, key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// peek is Get without metrics or LRU bookkeeping.
func (c *Cache[K, V]) peek(key K) (V, bool) {
	var zero V
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[key]
	if !ok || c.closed || it.isExpired(c.now()) {
		return zero, false
	}
	return it.value, true
}

// Delete removes key from the cache.
func (c *Cache[K, V]) Delete(ctx context.Context, key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if _, ok := c.items[key]; ok {
		delete(c.items, key)
		c.metrics.RecordCacheEvent(ctx, c.config.Name, EventEvictManual)
	}
}

// Size returns the current number of entries, expired ones included until
// the next cleanup.
func (c *Cache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the background cleanup goroutine and clears the cache.
// After Close is called, all cache operations become no-ops.
func (c *Cache[K, V]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stopCh)
	c.wg.Wait()

	c.mu.Lock()
	c.items = make(map[K]*item[V])
	c.mu.Unlock()

	c.logger.Debug("Cache closed")
	return nil
}

func (c *Cache[K, V]) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes all expired entries.
func (c *Cache[K, V]) cleanup() {
	now := c.now()
	ctx := context.Background()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	expired := 0
	for key, it := range c.items {
		if it.isExpired(now) {
			delete(c.items, key)
			expired++
		}
	}

	for range expired {
		c.metrics.RecordCacheEvent(ctx, c.config.Name, EventEvictExpired)
	}
	if expired > 0 {
		c.logger.Debug("Cleaned up expired cache entries",
			"expired_count", expired,
			"remaining", len(c.items))
	}
}

// evictIfNeededLocked evicts the least recently accessed entry when the
// cache is at capacity. Must be called with c.mu held.
func (c *Cache[K, V]) evictIfNeededLocked(ctx context.Context) {
	if len(c.items) < c.config.MaxEntries {
		return
	}

	var (
		oldestKey  K
		oldestTime time.Time
		found      bool
	)
	for key, it := range c.items {
		last := it.lastAccessed()
		if !found || last.Before(oldestTime) {
			oldestKey, oldestTime, found = key, last, true
		}
	}

	if found {
		delete(c.items, oldestKey)
		c.metrics.RecordCacheEvent(ctx, c.config.Name, EventEvictLRU)
		c.logger.Debug("Evicted LRU cache entry", "last_accessed", oldestTime)
	}
}

// Stats describes the cache for monitoring.
type Stats struct {
	Size        int
	MaxEntries  int
	TTL         time.Duration
	OldestEntry time.Duration
}

// Stats returns current cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		Size:       len(c.items),
		MaxEntries: c.config.MaxEntries,
		TTL:        c.config.TTL,
	}

	var oldest time.Time
	for _, it := range c.items {
		if oldest.IsZero() || it.createdAt.Before(oldest) {
			oldest = it.createdAt
		}
	}
	if !oldest.IsZero() {
		stats.OldestEntry = c.now().Sub(oldest)
	}
	return stats
}
