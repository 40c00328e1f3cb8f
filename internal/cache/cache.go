// Package cache provides the in-memory response cache used by the source-host adapter.
// Entries live in separate namespaces so file contents can be kept longer than general
// facts. Expired entries are treated as misses on lookup; there is no janitor.
package cache

import (
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Namespace partitions the cache.
type Namespace string

const (
	// General holds repository lists, contributors, CI and search results.
	General Namespace = "general"
	// Files holds fetched file contents.
	Files Namespace = "files"
)

// Key builds a cache key from an operation tag, a repository name and optional qualifiers.
func Key(op, repo string, qualifiers ...string) string {
	parts := append([]string{op, repo}, qualifiers...)
	return strings.Join(parts, ":")
}

// Cache is safe for concurrent use. Clear holds the write lock so no Get can observe a
// partially cleared cache.
type Cache struct {
	mu     sync.RWMutex
	stores map[Namespace]*gocache.Cache
	ttls   map[Namespace]time.Duration
}

// New creates a cache with the given default TTL per namespace.
func New(generalTTL, fileTTL time.Duration) *Cache {
	return &Cache{
		stores: map[Namespace]*gocache.Cache{
			General: gocache.New(generalTTL, 0),
			Files:   gocache.New(fileTTL, 0),
		},
		ttls: map[Namespace]time.Duration{
			General: generalTTL,
			Files:   fileTTL,
		},
	}
}

// Get returns the value stored under key, or false when absent or expired.
func (c *Cache) Get(ns Namespace, key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	store, ok := c.stores[ns]
	if !ok {
		return nil, false
	}
	return store.Get(key)
}

// Set stores value with the namespace's default TTL.
func (c *Cache) Set(ns Namespace, key string, value any) {
	c.SetWithTTL(ns, key, value, c.ttls[ns])
}

// SetWithTTL stores value with an explicit TTL. A TTL of zero or less expires the entry
// immediately.
func (c *Cache) SetWithTTL(ns Namespace, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		// go-cache reads 0 as "use the default", so expire on the next tick instead.
		ttl = time.Nanosecond
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if store, ok := c.stores[ns]; ok {
		store.Set(key, value, ttl)
	}
}

// Clear empties every namespace.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, store := range c.stores {
		store.Flush()
	}
}

// Stats is a point-in-time view of the cache contents.
type Stats struct {
	TotalEntries   int               `json:"total_entries"`
	ExpiredEntries int               `json:"expired_entries"`
	Namespaces     map[Namespace]int `json:"namespaces"`
}

// Stats reports entry counts. Expired entries are those still held in memory but no
// longer returned by Get.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{Namespaces: make(map[Namespace]int, len(c.stores))}
	for ns, store := range c.stores {
		total := store.ItemCount()
		live := len(store.Items())
		stats.TotalEntries += total
		if total > live {
			stats.ExpiredEntries += total - live
		}
		stats.Namespaces[ns] = total
	}
	return stats
}
