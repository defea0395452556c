package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/gh-dashboard/internal/config"
	"github.com/cam3ron2/gh-dashboard/internal/store"
	"go.uber.org/zap"
)

const (
	cacheBackendMemory = "memory"
	cacheBackendRedis  = "redis"
)

type responseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Stats() store.Stats
	Close() error
}

// CacheBackend is the response cache chosen from configuration.
type CacheBackend struct {
	// Name is the backend actually in use, which may differ from the configured one after a
	// fallback.
	Name  string
	Cache responseCache
	gc    func(ctx context.Context, now time.Time)
}

// GC drops expired entries.
func (b *CacheBackend) GC(ctx context.Context, now time.Time) {
	if b == nil || b.gc == nil {
		return
	}
	b.gc(ctx, now)
}

// NewCacheBackend opens the configured cache. An unreachable Redis falls back to the
// in-memory cache so the dashboard keeps serving.
func NewCacheBackend(cfg config.CacheConfig, logger *zap.Logger) *CacheBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), cacheBackendRedis) {
		redisCache, err := newRedisCacheFromConfig(cfg)
		if err != nil {
			logger.Warn("failed to initialize redis cache; falling back to in-memory cache", zap.Error(err))
		} else {
			return &CacheBackend{
				Name:  cacheBackendRedis,
				Cache: redisCache,
				gc: func(ctx context.Context, _ time.Time) {
					redisCache.GC(ctx)
				},
			}
		}
	}

	memoryCache := store.NewMemoryCache(cfg.MaxEntries)
	return &CacheBackend{
		Name:  cacheBackendMemory,
		Cache: memoryCache,
		gc: func(_ context.Context, now time.Time) {
			memoryCache.GC(now)
		},
	}
}

func newRedisCacheFromConfig(cfg config.CacheConfig) (*store.RedisCache, error) {
	redisClient := store.NewRedisClient(store.RedisOptions{
		Mode:          cfg.RedisMode,
		Addr:          cfg.RedisAddr,
		MasterSet:     cfg.RedisMasterSet,
		SentinelAddrs: cfg.RedisSentinelAddrs,
		Password:      cfg.RedisPassword,
		DB:            cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return store.NewRedisCache(redisClient, store.RedisCacheConfig{
		Namespace:  cfg.Namespace,
		MaxEntries: cfg.MaxEntries,
	}), nil
}
