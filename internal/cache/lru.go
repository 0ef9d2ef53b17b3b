package cache

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LRUCache holds derived views with TTL and size-based eviction.
// Concurrent misses on the same key share a single computation.
type LRUCache[T any] struct {
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	flight  singleflight.Group

	mu        sync.Mutex
	index     map[string]*list.Element
	order     *list.List // front is most recently used
	hits      uint64
	misses    uint64
	evictions uint64
}

type entry[T any] struct {
	key       string
	view      T
	expiresAt time.Time
}

// NewLRUCache creates a cache of at most maxSize views, each kept for ttl.
func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{
		maxSize: max(maxSize, 1),
		ttl:     ttl,
		now:     time.Now,
		index:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the live view stored under key. Expired views count as misses
// and are dropped on the way.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key)
}

func (c *LRUCache[T]) lookup(key string) (T, bool) {
	var zero T
	el, ok := c.index[key]
	if !ok {
		c.misses++
		return zero, false
	}
	e := el.Value.(*entry[T])
	if !c.now().Before(e.expiresAt) {
		c.drop(el)
		c.misses++
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return e.view, true
}

// Set stores view under key, evicting the least recently used view when full.
func (c *LRUCache[T]) Set(key string, view T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[T]{key: key, view: view, expiresAt: c.now().Add(c.ttl)}
	if el, ok := c.index[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(e)
	for c.order.Len() > c.maxSize {
		c.drop(c.order.Back())
		c.evictions++
	}
}

// GetOrCompute returns the view under key, computing and storing it on a
// miss. compute runs without the lock held and at most once per key at a time.
func (c *LRUCache[T]) GetOrCompute(key string, compute func() T) T {
	if v, ok := c.Get(key); ok {
		return v
	}
	v, _, _ := c.flight.Do(key, func() (any, error) {
		view := compute()
		c.Set(key, view)
		return view, nil
	})
	return v.(T)
}

// Delete removes key.
func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.drop(el)
	}
}

func (c *LRUCache[T]) drop(el *list.Element) {
	delete(c.index, el.Value.(*entry[T]).key)
	c.order.Remove(el)
}

// CleanExpired removes expired views and returns how many were removed.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*entry[T]).expiresAt) {
			c.drop(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Size returns the number of stored views, expired or not.
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Stats returns a snapshot of the counters.
func (c *LRUCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.index),
	}
}
