/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package adaptivecache

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-reqguard/log"
)

// DefaultMaxQueryRecords is the default number of query optimization records kept by the cache.
const DefaultMaxQueryRecords = 1000

// ErrInvalidKey is returned when an empty key is used to store or compute a value.
var ErrInvalidKey = errors.New("cache key must not be empty")

// Options represents options for the cache.
type Options struct {
	// DefaultTTL is used when a value is stored without an explicit TTL. Zero means entries never expire.
	DefaultTTL time.Duration

	// MaxEntries is the maximum number of entries. When it is exceeded, the least recently used
	// entries are evicted. Zero means no limit.
	MaxEntries int

	// MaxQueryRecords limits the query optimization log. The oldest records are dropped first.
	// DefaultMaxQueryRecords is used if zero.
	MaxQueryRecords int

	// Analyzer is used by AnalyzeQuery. A QueryAnalyzer with the default rules is used if nil.
	Analyzer *QueryAnalyzer

	// MetricsCollector is a disabled collector if nil.
	MetricsCollector MetricsCollector

	// Logger is a disabled logger if nil.
	Logger log.FieldLogger

	// Now returns the current time. time.Now is used if nil.
	Now func() time.Time
}

type cacheEntry[V any] struct {
	key            string
	value          V
	createdAt      time.Time
	ttl            time.Duration
	hitCount       int64
	lastAccessedAt time.Time
	sizeBytes      int
}

func (e *cacheEntry[V]) isExpired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// AdaptiveCache is a thread-safe in-memory cache with TTL expiration and LRU eviction.
type AdaptiveCache[V any] struct {
	defaultTTL      time.Duration
	maxEntries      int
	maxQueryRecords int
	analyzer        *QueryAnalyzer
	metrics         MetricsCollector
	logger          log.FieldLogger
	now             func() time.Time

	mu          sync.Mutex
	lruList     *list.List // front is the most recently used entry
	entries     map[string]*list.Element
	memoryBytes int64

	hits          atomic.Int64
	misses        atomic.Int64
	latencyTotal  atomic.Int64
	latencySample atomic.Int64
	hourly        hourlySeries

	recordsMu sync.Mutex
	records   []QueryOptimizationRecord

	inflight computeRegistry[V]
}

// New creates a new AdaptiveCache with the given options.
func New[V any](opts Options) (*AdaptiveCache[V], error) {
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("default TTL must be non-negative, got %s", opts.DefaultTTL)
	}
	if opts.MaxEntries < 0 {
		return nil, fmt.Errorf("max entries must be non-negative, got %d", opts.MaxEntries)
	}
	if opts.MaxQueryRecords < 0 {
		return nil, fmt.Errorf("max query records must be non-negative, got %d", opts.MaxQueryRecords)
	}
	if opts.MaxQueryRecords == 0 {
		opts.MaxQueryRecords = DefaultMaxQueryRecords
	}
	if opts.Analyzer == nil {
		opts.Analyzer = NewQueryAnalyzer()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetricsCollector
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AdaptiveCache[V]{
		defaultTTL:      opts.DefaultTTL,
		maxEntries:      opts.MaxEntries,
		maxQueryRecords: opts.MaxQueryRecords,
		analyzer:        opts.Analyzer,
		metrics:         opts.MetricsCollector,
		logger:          opts.Logger,
		now:             opts.Now,
		lruList:         list.New(),
		entries:         make(map[string]*list.Element),
	}, nil
}

// Get returns a value from the cache by the provided key.
// The found entry becomes the most recently used one. Expired entries are removed and reported as misses.
// An empty key is rejected without touching the counters.
func (c *AdaptiveCache[V]) Get(key string) (value V, ok bool) {
	if key == "" {
		c.logger.Debug("cache lookup with empty key is rejected")
		return value, false
	}

	startTime := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry := c.lookup(key, now)
	if entry == nil {
		c.misses.Inc()
		c.hourly.add(now, false)
		c.metrics.IncMisses()
		return value, false
	}

	entry.hitCount++
	entry.lastAccessedAt = now
	c.hits.Inc()
	c.hourly.add(now, true)
	c.metrics.IncHits()

	elapsed := time.Since(startTime)
	c.latencyTotal.Add(int64(elapsed))
	c.latencySample.Inc()
	c.metrics.ObserveResponseTime(elapsed)
	return entry.value, true
}

// lookup returns a live entry and moves it to the front of the LRU list.
// An expired entry is removed. Must be called under the lock.
func (c *AdaptiveCache[V]) lookup(key string, now time.Time) *cacheEntry[V] {
	elem, found := c.entries[key]
	if !found {
		return nil
	}
	entry := elem.Value.(*cacheEntry[V])
	if entry.isExpired(now) {
		c.removeElement(elem)
		c.metrics.SetAmount(len(c.entries))
		return nil
	}
	c.lruList.MoveToFront(elem)
	return entry
}

// Set stores a value with the default TTL.
func (c *AdaptiveCache[V]) Set(key string, value V) error {
	return c.SetWithTTL(key, value, 0)
}

// SetWithTTL stores a value with the provided TTL, overwriting any existing entry.
// A non-positive TTL means the default one.
func (c *AdaptiveCache[V]) SetWithTTL(key string, value V, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	size := c.estimateSize(key, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry := &cacheEntry[V]{key: key, value: value, createdAt: now, ttl: ttl, lastAccessedAt: now, sizeBytes: size}
	if elem, found := c.entries[key]; found {
		c.memoryBytes -= int64(elem.Value.(*cacheEntry[V]).sizeBytes)
		elem.Value = entry
		c.lruList.MoveToFront(elem)
	} else {
		c.entries[key] = c.lruList.PushFront(entry)
	}
	c.memoryBytes += int64(size)

	if c.maxEntries > 0 {
		if evicted := c.evictLRU(c.maxEntries); evicted > 0 {
			c.metrics.AddEvictions(evicted)
		}
	}
	c.metrics.SetAmount(len(c.entries))
	return nil
}

// estimateSize returns the JSON-encoded size of the value. Unencodable values count as zero bytes.
func (c *AdaptiveCache[V]) estimateSize(key string, value V) int {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("failed to estimate size of cache value", log.String("key", key), log.Error(err))
		return 0
	}
	return len(data)
}

// Delete removes the entry by the key and reports whether it was present.
func (c *AdaptiveCache[V]) Delete(key string) bool {
	if key == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, found := c.entries[key]
	if !found {
		return false
	}
	c.removeElement(elem)
	c.metrics.SetAmount(len(c.entries))
	return true
}

// Clear removes all entries. Hit/miss counters, latency and the hourly series are kept.
func (c *AdaptiveCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lruList.Init()
	c.memoryBytes = 0
	c.metrics.SetAmount(0)
}

// Len returns the number of entries, including expired ones that were not swept yet.
func (c *AdaptiveCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ComputeFunc computes a value for GetOrCompute.
type ComputeFunc[V any] func(ctx context.Context) (V, error)

// GetOrCompute returns the cached value for the key produced by keyFn or computes, stores and returns it.
// Concurrent calls that miss the same key share a single computeFn invocation.
// Errors from computeFn are returned as is and nothing is stored.
func (c *AdaptiveCache[V]) GetOrCompute(
	ctx context.Context, keyFn func() string, computeFn ComputeFunc[V], ttl time.Duration,
) (V, error) {
	key := keyFn()
	if key == "" {
		var zero V
		return zero, ErrInvalidKey
	}
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	return c.inflight.do(key, func() (V, error) {
		// The value might have been stored by a computation finished right before this one started.
		if value, ok := c.peek(key); ok {
			return value, nil
		}
		value, err := computeFn(ctx)
		if err != nil {
			return value, err
		}
		if err = c.SetWithTTL(key, value, ttl); err != nil {
			return value, err
		}
		return value, nil
	})
}

// peek returns a live value without updating counters or the LRU order.
func (c *AdaptiveCache[V]) peek(key string) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, found := c.entries[key]
	if !found {
		return value, false
	}
	entry := elem.Value.(*cacheEntry[V])
	if entry.isExpired(c.now()) {
		return value, false
	}
	return entry.value, true
}

// EvictExpired removes all expired entries and returns their number.
func (c *AdaptiveCache[V]) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for _, elem := range c.entries {
		if elem.Value.(*cacheEntry[V]).isExpired(now) {
			c.removeElement(elem)
			removed++
		}
	}
	if removed > 0 {
		c.metrics.SetAmount(len(c.entries))
	}
	return removed
}

// EvictLRU removes the least recently used entries until at most maxEntries remain
// and returns the number of removed entries.
func (c *AdaptiveCache[V]) EvictLRU(maxEntries int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := c.evictLRU(max(0, maxEntries))
	if evicted > 0 {
		c.metrics.AddEvictions(evicted)
		c.metrics.SetAmount(len(c.entries))
	}
	return evicted
}

func (c *AdaptiveCache[V]) evictLRU(maxEntries int) int {
	evicted := 0
	for len(c.entries) > maxEntries {
		elem := c.lruList.Back()
		if elem == nil {
			break
		}
		c.removeElement(elem)
		evicted++
	}
	return evicted
}

func (c *AdaptiveCache[V]) removeElement(elem *list.Element) {
	entry := c.lruList.Remove(elem).(*cacheEntry[V])
	delete(c.entries, entry.key)
	c.memoryBytes -= int64(entry.sizeBytes)
}

// RunPeriodicCleanup sweeps expired entries (and enforces MaxEntries, if set) every interval until ctx is done.
func (c *AdaptiveCache[V]) RunPeriodicCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

// Cleanup runs a single sweep: expired entries are removed first, then MaxEntries is enforced.
func (c *AdaptiveCache[V]) Cleanup() (expired, evicted int) {
	expired = c.EvictExpired()
	if c.maxEntries > 0 {
		evicted = c.EvictLRU(c.maxEntries)
	}
	if expired > 0 || evicted > 0 {
		c.logger.Debug("cache cleanup finished", log.Int("expired", expired), log.Int("evicted", evicted))
	}
	return expired, evicted
}

// Stats returns a snapshot of the cache statistics.
func (c *AdaptiveCache[V]) Stats() Statistics {
	c.mu.Lock()
	entries, memory := len(c.entries), c.memoryBytes
	c.mu.Unlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	var avgLatency time.Duration
	if samples := c.latencySample.Load(); samples > 0 {
		avgLatency = time.Duration(c.latencyTotal.Load() / samples)
	}
	return Statistics{
		Entries:         entries,
		Hits:            hits,
		Misses:          misses,
		MemoryBytes:     memory,
		HitRate:         hitRate(hits, misses),
		AvgResponseTime: avgLatency,
	}
}

// AnalyzeQuery runs the query analyzer and appends the result to the query optimization log.
// Cache entries are not affected.
func (c *AdaptiveCache[V]) AnalyzeQuery(query string, executionTime time.Duration) QueryOptimizationRecord {
	record := c.analyzer.Analyze(query, executionTime)
	record.CreatedAt = c.now()

	c.recordsMu.Lock()
	defer c.recordsMu.Unlock()
	if len(c.records) >= c.maxQueryRecords {
		n := copy(c.records, c.records[len(c.records)-c.maxQueryRecords+1:])
		c.records = c.records[:n]
	}
	c.records = append(c.records, record)
	return record
}

// QueryRecords returns a copy of the query optimization log, oldest first.
func (c *AdaptiveCache[V]) QueryRecords() []QueryOptimizationRecord {
	c.recordsMu.Lock()
	defer c.recordsMu.Unlock()
	return append([]QueryOptimizationRecord(nil), c.records...)
}
