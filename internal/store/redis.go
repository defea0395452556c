package store

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCommander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SIsMember(ctx context.Context, key string, member any) *redis.BoolCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// Mode is "standalone" (default) or "sentinel".
	Mode          string
	Addr          string
	MasterSet     string
	SentinelAddrs []string
	Password      string
	DB            int
}

// RedisCacheConfig configures the Redis-backed cache.
type RedisCacheConfig struct {
	Namespace  string
	MaxEntries int
}

// RedisCache stores payloads in Redis with server-side expiry. An index set tracks live
// entries so the entry budget can be enforced across replicas.
type RedisCache struct {
	client     redisCommander
	closeFn    func() error
	namespace  string
	maxEntries int
	hits       atomic.Uint64
	misses     atomic.Uint64
}

// NewRedisClient builds a standalone or sentinel client.
func NewRedisClient(opts RedisOptions) redis.UniversalClient {
	if strings.EqualFold(strings.TrimSpace(opts.Mode), "sentinel") {
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    opts.MasterSet,
			SentinelAddrs: opts.SentinelAddrs,
			Password:      opts.Password,
			DB:            opts.DB,
		})
	}
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client redis.UniversalClient, cfg RedisCacheConfig) *RedisCache {
	closeFn := func() error { return nil }
	if client != nil {
		closeFn = client.Close
	}
	return newRedisCacheFromCommander(client, closeFn, cfg)
}

func newRedisCacheFromCommander(client redisCommander, closeFn func() error, cfg RedisCacheConfig) *RedisCache {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "gh-dashboard"
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return &RedisCache{
		client:     client,
		closeFn:    closeFn,
		namespace:  namespace,
		maxEntries: cfg.MaxEntries,
	}
}

// Close closes the underlying Redis client.
func (c *RedisCache) Close() error {
	if c == nil || c.closeFn == nil {
		return nil
	}
	return c.closeFn()
}

// Get reads the value stored under key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, fmt.Errorf("redis cache is not initialized")
	}
	value, err := c.client.Get(ctx, c.entryKey(hashKey(key))).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		c.misses.Add(1)
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	c.hits.Add(1)
	return value, true, nil
}

// Set writes value under key with SET ... EX ttl.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("redis cache is not initialized")
	}
	if key == "" {
		return fmt.Errorf("cache key is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}

	entryID := hashKey(key)
	if c.maxEntries > 0 {
		isMember, err := c.client.SIsMember(ctx, c.indexKey(), entryID).Result()
		if err != nil {
			return fmt.Errorf("check cache membership: %w", err)
		}
		if !isMember {
			count, err := c.client.SCard(ctx, c.indexKey()).Result()
			if err != nil {
				return fmt.Errorf("count cache entries: %w", err)
			}
			if count >= int64(c.maxEntries) {
				c.GC(ctx)
				if count, err = c.client.SCard(ctx, c.indexKey()).Result(); err != nil {
					return fmt.Errorf("count cache entries: %w", err)
				}
				if count >= int64(c.maxEntries) {
					return fmt.Errorf("max entries budget exceeded")
				}
			}
		}
	}

	if err := c.client.Set(ctx, c.entryKey(entryID), value, ttl).Err(); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := c.client.SAdd(ctx, c.indexKey(), entryID).Err(); err != nil {
		return fmt.Errorf("index cache entry: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("redis cache is not initialized")
	}
	return c.client.Ping(ctx).Err()
}

// GC removes index references whose entries have already expired.
func (c *RedisCache) GC(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	entryIDs, err := c.client.SMembers(ctx, c.indexKey()).Result()
	if err != nil {
		return
	}
	for _, entryID := range entryIDs {
		exists, err := c.client.Exists(ctx, c.entryKey(entryID)).Result()
		if err != nil {
			continue
		}
		if exists == 0 {
			_ = c.client.SRem(ctx, c.indexKey(), entryID).Err()
		}
	}
}

// Stats returns activity counters. Entries counts the index, which may include entries
// expired since the last GC.
func (c *RedisCache) Stats() Stats {
	stats := Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	if c.client == nil {
		return stats
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if count, err := c.client.SCard(ctx, c.indexKey()).Result(); err == nil {
		stats.Entries = int(count)
	}
	return stats
}

func (c *RedisCache) prefixed(suffix string) string {
	return c.namespace + ":" + suffix
}

func (c *RedisCache) indexKey() string {
	return c.prefixed("cache:index")
}

func (c *RedisCache) entryKey(entryID string) string {
	return c.prefixed("cache:" + entryID)
}

func hashKey(raw string) string {
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
