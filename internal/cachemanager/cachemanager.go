// Package cachemanager provides a bounded in-memory cache on top of go-cache.
package cachemanager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/newhook/diaglog/internal/logging"
)

const (
	// DefaultExpiration keeps entries until they are evicted by size.
	DefaultExpiration = cache.NoExpiration
	// DefaultCleanupInterval is how often expired entries are purged.
	DefaultCleanupInterval = 10 * time.Minute
	// DefaultMaxEntries bounds the number of cached entries.
	DefaultMaxEntries = 1000
)

// CacheManager is a typed key/value cache.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
	Stats() Stats
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
}

// HitRate is hits over lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// InMemoryCacheManager evicts the oldest inserted entry once maxEntries is
// reached.
type InMemoryCacheManager[K comparable, V any] struct {
	name       string
	cache      *cache.Cache
	maxEntries int

	mu    sync.Mutex
	order []string
	known map[string]struct{}

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewInMemoryCacheManager creates a cache holding at most maxEntries.
// A non-positive maxEntries means DefaultMaxEntries.
func NewInMemoryCacheManager[K comparable, V any](name string, maxEntries int, defaultExpiration, cleanupInterval time.Duration) *InMemoryCacheManager[K, V] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	m := &InMemoryCacheManager[K, V]{
		name:       name,
		cache:      cache.New(defaultExpiration, cleanupInterval),
		maxEntries: maxEntries,
		known:      make(map[string]struct{}),
	}
	m.cache.OnEvicted(func(key string, _ interface{}) {
		logging.Debug("cache entry removed", "cache", name, "key", key)
	})
	return m
}

func keyString[K comparable](key K) string {
	return fmt.Sprint(key)
}

// Get returns the cached value for key.
func (m *InMemoryCacheManager[K, V]) Get(_ context.Context, key K) (V, bool) {
	var zero V
	raw, ok := m.cache.Get(keyString(key))
	if !ok {
		m.misses.Add(1)
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		m.misses.Add(1)
		return zero, false
	}
	m.hits.Add(1)
	return v, true
}

// Set stores value under key. Overwriting a key keeps its insertion position.
func (m *InMemoryCacheManager[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	k := keyString(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.known[k]; !ok {
		for len(m.order) > 0 && len(m.known) >= m.maxEntries {
			oldest := m.order[0]
			m.order = m.order[1:]
			delete(m.known, oldest)
			m.cache.Delete(oldest)
			m.evictions.Add(1)
		}
		m.order = append(m.order, k)
		m.known[k] = struct{}{}
	}
	m.cache.Set(k, value, ttl)
}

// Delete removes keys from the cache.
func (m *InMemoryCacheManager[K, V]) Delete(_ context.Context, keys ...K) error {
	if len(keys) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		k := keyString(key)
		if _, ok := m.known[k]; ok {
			delete(m.known, k)
			for i, o := range m.order {
				if o == k {
					m.order = append(m.order[:i], m.order[i+1:]...)
					break
				}
			}
		}
		m.cache.Delete(k)
	}
	return nil
}

// Flush removes every entry. Hit and miss counters are kept.
func (m *InMemoryCacheManager[K, V]) Flush(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Flush()
	m.order = nil
	m.known = make(map[string]struct{})
	logging.Debug("cache flushed", "cache", m.name)
	return nil
}

// Stats returns the current counters.
func (m *InMemoryCacheManager[K, V]) Stats() Stats {
	return Stats{
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
		Entries:   m.cache.ItemCount(),
	}
}
