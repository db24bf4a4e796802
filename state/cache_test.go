package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCache(t *testing.T, store Store, ttl time.Duration, capacity int) (*TTLCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	cache, err := NewTTLCache(store, ttl, capacity, WithClock(clock.Now))
	require.NoError(t, err)
	return cache, clock
}

func TestTTLCache_Boundary(t *testing.T) {
	ctx := context.Background()
	ttl := time.Hour
	key := Key{Op: "search", ID: "시니어", Extra: "p1"}

	tests := []struct {
		name    string
		elapsed time.Duration
		wantHit bool
	}{
		{"fresh", 0, true},
		{"just before ttl", ttl - time.Millisecond, true},
		{"exactly ttl", ttl, false},
		{"just after ttl", ttl + time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, clock := newTestCache(t, NewMemoryStore(), ttl, 10)
			cache.Set(ctx, key, []byte("channels"), ttl)

			clock.Advance(tt.elapsed)
			value, hit := cache.Get(ctx, key)
			assert.Equal(t, tt.wantHit, hit)
			if tt.wantHit {
				assert.Equal(t, "channels", string(value))
			}
		})
	}
}

func TestTTLCache_ExpiredEntryRemovedFromStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cache, clock := newTestCache(t, store, time.Minute, 10)

	key := Key{Op: "uploads", ID: "UC1"}
	cache.Set(ctx, key, []byte("x"), 0)
	assert.Equal(t, 1, store.Len())

	clock.Advance(2 * time.Minute)
	_, hit := cache.Get(ctx, key)
	assert.False(t, hit)
	assert.Equal(t, 0, store.Len())
}

func TestTTLCache_SurvivesReload(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := Key{Op: "search", ID: "health"}

	first, clock := newTestCache(t, store, time.Hour, 10)
	first.SetJSON(ctx, key, []string{"c1", "c2"})

	// a new process sees the mirrored entry within the window
	second, err := NewTTLCache(store, time.Hour, 10, WithClock(func() time.Time {
		return clock.Now().Add(30 * time.Minute)
	}))
	require.NoError(t, err)

	var channels []string
	require.True(t, second.GetJSON(ctx, key, &channels))
	assert.Equal(t, []string{"c1", "c2"}, channels)
	assert.Equal(t, 1, second.Len())
}

func TestTTLCache_CapacityFallsThroughToStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cache, _ := newTestCache(t, store, time.Hour, 2)

	for _, id := range []string{"a", "b", "c"} {
		cache.Set(ctx, Key{Op: "uploads", ID: id}, []byte(id), 0)
	}
	assert.Equal(t, 2, cache.Len())

	// "a" was evicted from memory but is still served from the store
	value, hit := cache.Get(ctx, Key{Op: "uploads", ID: "a"})
	assert.True(t, hit)
	assert.Equal(t, "a", string(value))
}

func TestTTLCache_MemoryOnly(t *testing.T) {
	ctx := context.Background()
	cache, clock := newTestCache(t, nil, time.Second, 0)

	cache.Set(ctx, Key{Op: "videos", ID: "v1"}, []byte("1"), 0)
	_, hit := cache.Get(ctx, Key{Op: "videos", ID: "v1"})
	assert.True(t, hit)

	clock.Advance(time.Second)
	_, hit = cache.Get(ctx, Key{Op: "videos", ID: "v1"})
	assert.False(t, hit)
}

func TestTTLCache_PerEntryTTL(t *testing.T) {
	ctx := context.Background()
	cache, clock := newTestCache(t, NewMemoryStore(), time.Hour, 10)

	short := Key{Op: "uploads", ID: "short"}
	cache.Set(ctx, short, []byte("s"), time.Minute)
	long := Key{Op: "uploads", ID: "long"}
	cache.Set(ctx, long, []byte("l"), 0)

	clock.Advance(5 * time.Minute)
	_, hit := cache.Get(ctx, short)
	assert.False(t, hit)
	_, hit = cache.Get(ctx, long)
	assert.True(t, hit)
}

func TestTTLCache_InvalidTTL(t *testing.T) {
	_, err := NewTTLCache(nil, 0, 10)
	assert.Error(t, err)
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "trends:cache:search:cooking:tok", Key{Op: "search", ID: "cooking", Extra: "tok"}.String())
	assert.Equal(t, "trends:cache:uploads:UC1:", Key{Op: "uploads", ID: "UC1"}.String())
}
