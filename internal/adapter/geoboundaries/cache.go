package geoboundaries

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/couchcryptid/climate-region-etl/internal/domain"
	"github.com/couchcryptid/climate-region-etl/internal/observability"
)

// Store is a shared second-tier cache, typically Redis. Errors are
// logged and treated as misses.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CachedFetcher wraps a BoundaryFetcher with an in-memory LRU cache and an
// optional shared Store. Empty results and errors are never cached.
type CachedFetcher struct {
	inner   domain.BoundaryFetcher
	memory  *lruCache
	shared  Store
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedFetcher creates a cache decorator around a fetcher. shared may be nil.
func NewCachedFetcher(inner domain.BoundaryFetcher, maxEntries int, shared Store, metrics *observability.Metrics, logger *slog.Logger) *CachedFetcher {
	return &CachedFetcher{
		inner:   inner,
		memory:  newLRUCache(maxEntries),
		shared:  shared,
		metrics: metrics,
		logger:  logger,
	}
}

func (c *CachedFetcher) FetchLevels(ctx context.Context, country string) ([]domain.BoundaryLevel, error) {
	key := "levels:" + country
	if data, ok := c.lookup(ctx, key); ok {
		var levels []domain.BoundaryLevel
		if err := json.Unmarshal(data, &levels); err == nil {
			return levels, nil
		}
		c.logger.Warn("discarding corrupt cached boundary levels", "country", country)
	}

	levels, err := c.inner.FetchLevels(ctx, country)
	if err != nil || len(levels) == 0 {
		return levels, err
	}
	if data, err := json.Marshal(levels); err == nil {
		c.store(ctx, key, data)
	}
	return levels, nil
}

func (c *CachedFetcher) FetchGeometry(ctx context.Context, url string) ([]byte, error) {
	key := "geometry:" + url
	if data, ok := c.lookup(ctx, key); ok {
		return data, nil
	}

	data, err := c.inner.FetchGeometry(ctx, url)
	if err != nil || len(data) == 0 {
		return data, err
	}
	c.store(ctx, key, data)
	return data, nil
}

func (c *CachedFetcher) lookup(ctx context.Context, key string) ([]byte, bool) {
	if data, ok := c.memory.get(key); ok {
		c.metrics.BoundaryCache.WithLabelValues("memory", "hit").Inc()
		return data, true
	}
	c.metrics.BoundaryCache.WithLabelValues("memory", "miss").Inc()

	if c.shared == nil {
		return nil, false
	}
	data, ok, err := c.shared.Get(ctx, key)
	if err != nil {
		c.logger.Warn("shared boundary cache unavailable", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		c.metrics.BoundaryCache.WithLabelValues("redis", "miss").Inc()
		return nil, false
	}
	c.metrics.BoundaryCache.WithLabelValues("redis", "hit").Inc()
	c.memory.put(key, data)
	return data, true
}

func (c *CachedFetcher) store(ctx context.Context, key string, data []byte) {
	c.memory.put(key, data)
	if c.shared == nil {
		return
	}
	if err := c.shared.Set(ctx, key, data); err != nil {
		c.logger.Warn("shared boundary cache write failed", "key", key, "error", err)
	}
}

// lruCache is a thread-safe LRU cache of raw payloads.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []byte
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
