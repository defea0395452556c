package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheGetSet(t *testing.T) {
	t.Parallel()

	now := time.Unix(1739836800, 0)
	cache := NewMemoryCache(0)
	cache.Now = func() time.Time { return now }

	ctx := context.Background()
	if _, found, err := cache.Get(ctx, "missing"); found || err != nil {
		t.Fatalf("Get(missing) found=%v err=%v", found, err)
	}
	if err := cache.Set(ctx, "ranking:global", []byte(`{"total":2}`), time.Minute); err != nil {
		t.Fatalf("Set() unexpected error: %v", err)
	}

	value, found, err := cache.Get(ctx, "ranking:global")
	if err != nil || !found || string(value) != `{"total":2}` {
		t.Fatalf("Get() = %q, %v, %v", value, found, err)
	}
	value[0] = 'X'
	if again, _, _ := cache.Get(ctx, "ranking:global"); string(again) != `{"total":2}` {
		t.Fatalf("Get() returned aliased storage")
	}

	now = now.Add(time.Minute)
	if _, found, _ := cache.Get(ctx, "ranking:global"); found {
		t.Fatalf("Get() returned entry at its expiry")
	}

	stats := cache.Stats()
	if stats.Hits != 2 || stats.Misses != 2 || stats.Entries != 0 {
		t.Fatalf("Stats() = %+v", stats)
	}
}

func TestMemoryCacheValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		key  string
		ttl  time.Duration
	}{
		{name: "empty_key", key: "", ttl: time.Minute},
		{name: "zero_ttl", key: "k", ttl: 0},
		{name: "negative_ttl", key: "k", ttl: -time.Second},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if err := NewMemoryCache(0).Set(context.Background(), tc.key, []byte("v"), tc.ttl); err == nil {
				t.Fatalf("Set() expected error")
			}
		})
	}
}

func TestMemoryCacheEntryBudget(t *testing.T) {
	t.Parallel()

	now := time.Unix(1739836800, 0)
	cache := NewMemoryCache(2)
	cache.Now = func() time.Time { return now }
	ctx := context.Background()

	if err := cache.Set(ctx, "a", []byte("1"), time.Second); err != nil {
		t.Fatalf("Set(a) unexpected error: %v", err)
	}
	if err := cache.Set(ctx, "b", []byte("2"), time.Hour); err != nil {
		t.Fatalf("Set(b) unexpected error: %v", err)
	}
	if err := cache.Set(ctx, "c", []byte("3"), time.Hour); err == nil {
		t.Fatalf("Set(c) expected budget error")
	}
	if err := cache.Set(ctx, "b", []byte("22"), time.Hour); err != nil {
		t.Fatalf("overwriting an existing key should not hit the budget: %v", err)
	}

	now = now.Add(2 * time.Second)
	if err := cache.Set(ctx, "c", []byte("3"), time.Hour); err != nil {
		t.Fatalf("Set(c) after expiry unexpected error: %v", err)
	}
	if got := cache.Stats().Entries; got != 2 {
		t.Fatalf("entries = %d, want 2", got)
	}
}

func TestMemoryCacheGC(t *testing.T) {
	t.Parallel()

	now := time.Unix(1739836800, 0)
	cache := NewMemoryCache(0)
	cache.Now = func() time.Time { return now }
	ctx := context.Background()

	_ = cache.Set(ctx, "short", []byte("1"), time.Second)
	_ = cache.Set(ctx, "long", []byte("2"), time.Hour)
	cache.GC(now.Add(time.Minute))

	if got := cache.Stats().Entries; got != 1 {
		t.Fatalf("entries after GC = %d, want 1", got)
	}
	if err := cache.Ping(ctx); err != nil {
		t.Fatalf("Ping() unexpected error: %v", err)
	}
}
