package network

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CacheEntry is a stored response envelope keyed by request fingerprint.
type CacheEntry struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	CreatedAt  time.Time
	ExpiresAt  time.Time

	hits uint64
}

// Hits returns how many times the entry has been served.
func (e *CacheEntry) Hits() uint64 {
	return atomic.LoadUint64(&e.hits)
}

// Expired reports whether the entry's TTL has elapsed at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

func (e *CacheEntry) recordHit() {
	atomic.AddUint64(&e.hits, 1)
}

// Cache is the pluggable backing store for response caching. Implementations
// may be remote; any error is swallowed by the client, logged, and treated
// as a miss. Get must treat expired entries as absent.
type Cache interface {
	Get(key string) (*CacheEntry, bool, error)
	Set(key string, entry *CacheEntry, ttl time.Duration) error
	Delete(key string) error
	Clear() error
	Keys() ([]string, error)
	Len() int
}

// InMemoryCache is a bounded in-memory Cache. Expiry is checked lazily on
// read. When full it evicts in insertion order (FIFO, not LRU); callers
// relying on eviction order should not expect access recency to matter.
type InMemoryCache struct {
	mu         sync.Mutex
	store      map[string]*CacheEntry
	order      []string
	maxEntries int
}

// NewInMemoryCache creates an in-memory cache holding at most maxEntries
// entries. maxEntries <= 0 means unbounded.
func NewInMemoryCache(maxEntries int) *InMemoryCache {
	return &InMemoryCache{
		store:      make(map[string]*CacheEntry),
		maxEntries: maxEntries,
	}
}

// Get retrieves a live entry. Expired entries are removed and reported absent.
func (c *InMemoryCache) Get(key string) (*CacheEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.store[key]
	if !exists {
		return nil, false, nil
	}

	if entry.Expired(time.Now()) {
		c.remove(key)
		return nil, false, nil
	}

	entry.recordHit()
	return entry, true, nil
}

// Set stores an entry under key with the given TTL, evicting the oldest
// insertion if the cache is full.
func (c *InMemoryCache) Set(key string, entry *CacheEntry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry.CreatedAt = now
	entry.ExpiresAt = now.Add(ttl)

	if _, exists := c.store[key]; !exists {
		if c.maxEntries > 0 && len(c.store) >= c.maxEntries {
			if len(c.order) > 0 {
				oldest := c.order[0]
				c.remove(oldest)
			}
		}
		c.order = append(c.order, key)
	}
	c.store[key] = entry
	return nil
}

// Delete removes an entry if present.
func (c *InMemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(key)
	return nil
}

// Clear removes all entries.
func (c *InMemoryCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]*CacheEntry)
	c.order = c.order[:0]
	return nil
}

// Keys returns the current keys in insertion order.
func (c *InMemoryCache) Keys() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	return keys, nil
}

// Len returns the number of stored entries, including not-yet-swept
// expired ones.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store)
}

// remove must be called with c.mu held.
func (c *InMemoryCache) remove(key string) {
	if _, exists := c.store[key]; !exists {
		return
	}
	delete(c.store, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// DefaultCacheCondition caches GET requests only.
func DefaultCacheCondition(req *http.Request) bool {
	return req.Method == http.MethodGet
}
