package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/researchaccelerator-hub/youtube-trends/metrics"
	"github.com/rs/zerolog/log"
)

// DefaultCacheCapacity is the in-memory entry cap used when none is configured
const DefaultCacheCapacity = 5000

// Key identifies a cached response
type Key struct {
	Op    string // operation type, e.g. "search" or "uploads"
	ID    string // entity ID (keyword, channel ID, playlist ID)
	Extra string // extra parameters such as a page token
}

// String renders the namespaced storage key
func (k Key) String() string {
	return fmt.Sprintf("%s%s:%s:%s", KeyCachePrefix, k.Op, k.ID, k.Extra)
}

type cacheEntry struct {
	Value    []byte    `json:"value"`
	StoredAt time.Time `json:"stored_at"`
	TTL      int64     `json:"ttl_ms"`
}

func (e cacheEntry) fresh(now time.Time) bool {
	return now.Sub(e.StoredAt) < time.Duration(e.TTL)*time.Millisecond
}

// TTLCache memoizes list responses for a fixed window. Entries live in a
// bounded LRU and are mirrored to a Store so they survive restarts.
type TTLCache struct {
	memory *lru.Cache[string, cacheEntry]
	store  Store
	ttl    time.Duration
	now    func() time.Time
}

// CacheOption customizes a TTLCache
type CacheOption func(*TTLCache)

// WithClock replaces the wall clock, used by tests
func WithClock(now func() time.Time) CacheOption {
	return func(c *TTLCache) {
		c.now = now
	}
}

// NewTTLCache creates a cache with the given default TTL and in-memory capacity.
// store may be nil for a memory-only cache.
func NewTTLCache(store Store, ttl time.Duration, capacity int, opts ...CacheOption) (*TTLCache, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive")
	}
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}

	memory, err := lru.New[string, cacheEntry](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	c := &TTLCache{
		memory: memory,
		store:  store,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the cached value for key if it was stored less than its TTL ago
func (c *TTLCache) Get(ctx context.Context, key Key) ([]byte, bool) {
	k := key.String()
	now := c.now()

	if entry, ok := c.memory.Get(k); ok {
		if entry.fresh(now) {
			metrics.Metrics.CacheRequests.WithLabelValues("hit").Inc()
			return entry.Value, true
		}
		c.evict(ctx, k)
		metrics.Metrics.CacheRequests.WithLabelValues("expired").Inc()
		return nil, false
	}

	if c.store == nil {
		metrics.Metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}

	raw, found, err := c.store.Get(ctx, k)
	if err != nil {
		log.Warn().Err(err).Str("key", k).Msg("Cache store read failed, treating as miss")
		metrics.Metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}
	if !found {
		metrics.Metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Warn().Err(err).Str("key", k).Msg("Discarding corrupt cache entry")
		c.evict(ctx, k)
		metrics.Metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}

	if !entry.fresh(now) {
		c.evict(ctx, k)
		metrics.Metrics.CacheRequests.WithLabelValues("expired").Inc()
		return nil, false
	}

	c.memory.Add(k, entry)
	metrics.Metrics.CacheRequests.WithLabelValues("hit").Inc()
	return entry.Value, true
}

// Set stores value under key with the current timestamp. A non-positive
// ttl uses the cache default.
func (c *TTLCache) Set(ctx context.Context, key Key, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	k := key.String()
	entry := cacheEntry{
		Value:    value,
		StoredAt: c.now(),
		TTL:      ttl.Milliseconds(),
	}
	c.memory.Add(k, entry)

	if c.store == nil {
		return
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		log.Warn().Err(err).Str("key", k).Msg("Failed to encode cache entry")
		return
	}
	if err := c.store.Set(ctx, k, raw); err != nil {
		log.Warn().Err(err).Str("key", k).Msg("Failed to mirror cache entry to store")
	}
}

// GetJSON decodes a cached value into out
func (c *TTLCache) GetJSON(ctx context.Context, key Key, out any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("Cached value does not decode")
		return false
	}
	return true
}

// SetJSON encodes value and caches it with the default TTL
func (c *TTLCache) SetJSON(ctx context.Context, key Key, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("Failed to encode value for cache")
		return
	}
	c.Set(ctx, key, raw, 0)
}

// Len returns the number of entries held in memory
func (c *TTLCache) Len() int {
	return c.memory.Len()
}

func (c *TTLCache) evict(ctx context.Context, k string) {
	c.memory.Remove(k)
	if c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, k); err != nil {
		log.Debug().Err(err).Str("key", k).Msg("Failed to delete expired cache entry")
	}
}
