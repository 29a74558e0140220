package ogcapi

import (
	"context"
	"sync"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
	"github.com/couchcryptid/hydrometric-etl/internal/observability"
)

// CachedSource wraps a SeriesSource with an in-memory LRU cache. It is meant
// for the historical collection, whose rows do not change between runs.
type CachedSource struct {
	inner   domain.SeriesSource
	cache   *lruCache[domain.Series]
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator around a series source.
func NewCachedSource(inner domain.SeriesSource, maxEntries int, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:   inner,
		cache:   newLRUCache[domain.Series](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedSource) Series(ctx context.Context, q domain.SeriesQuery) (domain.Series, error) {
	key := q.Key()
	if s, ok := c.cache.get(key); ok {
		c.metrics.SeriesCache.WithLabelValues("hit").Inc()
		return s.Clone(), nil
	}
	c.metrics.SeriesCache.WithLabelValues("miss").Inc()

	s, err := c.inner.Series(ctx, q)
	if err != nil {
		return s, err
	}
	// Only cache non-empty results so a station that starts reporting is
	// picked up on the next run.
	if !s.Empty() {
		c.cache.put(key, s.Clone())
	}
	return s, nil
}

// Len returns the number of cached series.
func (c *CachedSource) Len() int {
	return c.cache.len()
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
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

func (c *lruCache[V]) remove(e *entry[V]) {
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

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
