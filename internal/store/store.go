// Package store caches serialized backend payloads, in process or in Redis.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Stats reports cache activity.
type Stats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache with an entry budget.
type MemoryCache struct {
	mu         sync.RWMutex
	maxEntries int
	entries    map[string]memoryEntry
	hits       uint64
	misses     uint64
	// Now is injected for testability.
	Now func() time.Time
}

// NewMemoryCache creates a memory cache. maxEntries <= 0 means unbounded.
func NewMemoryCache(maxEntries int) *MemoryCache {
	return &MemoryCache{
		maxEntries: maxEntries,
		entries:    make(map[string]memoryEntry),
		Now:        time.Now,
	}
}

// Get returns a copy of the value stored under key if it has not expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := c.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || !now.Before(entry.expiresAt) {
		if ok {
			delete(c.entries, key)
		}
		c.misses++
		return nil, false, nil
	}
	c.hits++
	return append([]byte(nil), entry.value...), true, nil
}

// Set stores value under key for ttl. New keys beyond the entry budget are rejected after
// expired entries have been collected.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("cache key is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	now := c.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.gcLocked(now)
		if len(c.entries) >= c.maxEntries {
			return fmt.Errorf("max entries budget exceeded")
		}
	}
	c.entries[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Ping always succeeds.
func (c *MemoryCache) Ping(context.Context) error {
	return nil
}

// GC deletes expired entries.
func (c *MemoryCache) GC(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gcLocked(now)
}

// Stats returns activity counters.
func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// Close is a no-op.
func (c *MemoryCache) Close() error {
	return nil
}

func (c *MemoryCache) gcLocked(now time.Time) {
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
