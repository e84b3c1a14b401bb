package cache

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Default sizing for the result cache.
const (
	// DefaultMaxEntries bounds the number of cached result lists.
	DefaultMaxEntries = 1000

	// DefaultTTL is the maximum age of a served entry.
	DefaultTTL = time.Hour
)

// entry wraps a cached value with its timing metadata.
type entry[V any] struct {
	value      V
	insertedAt time.Time
	lastAccess time.Time
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits    int64
	Misses  int64
	Expired int64
	Size    int
}

// Cache is a size-bounded LRU with TTL expiry measured from insertion.
// Values are passed through a caller-supplied clone function on both Put
// and Get so a caller mutating its slice cannot poison the cached copy.
// Safe for concurrent use.
type Cache[V any] struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, *entry[V]]
	ttl   time.Duration
	clone func(V) V
	now   func() time.Time

	hits    int64
	misses  int64
	expired int64
}

// New creates a cache with the given capacity and TTL. clone must return
// an independent copy of a value; pass the identity function only for
// immutable values.
func New[V any](maxEntries int, ttl time.Duration, clone func(V) V) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	backing, _ := lru.New[string, *entry[V]](maxEntries)
	return &Cache[V]{
		lru:   backing,
		ttl:   ttl,
		clone: clone,
		now:   time.Now,
	}
}

// Get returns the cached value for key if present and younger than TTL.
// A hit refreshes the entry's last-access time; an expired entry is
// removed and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return zero, false
	}

	if c.now().Sub(e.insertedAt) > c.ttl {
		c.lru.Remove(key)
		c.expired++
		c.misses++
		return zero, false
	}

	e.lastAccess = c.now()
	c.hits++
	return c.clone(e.value), true
}

// Put stores a defensive copy of value under key.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.lru.Add(key, &entry[V]{
		value:      c.clone(value),
		insertedAt: now,
		lastAccess: now,
	})
}

// InvalidatePrefix removes every entry whose key starts with prefix.
// Keys are fingerprint-prefixed, so passing a filter fingerprint drops
// all results cached under that filter. Returns the number removed.
func (c *Cache[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// Purge removes all entries.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len returns the current number of entries, including any not yet
// observed to be expired.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns a snapshot of the counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Expired: c.expired,
		Size:    c.lru.Len(),
	}
}
