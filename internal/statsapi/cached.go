package statsapi

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Cache stores serialized payloads with a per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CacheTTLs sets the lifetime of each payload kind.
type CacheTTLs struct {
	Rankings  time.Duration
	Countries time.Duration
	Stats     time.Duration
}

// DefaultCacheTTLs mirrors the backend's revalidation hints.
func DefaultCacheTTLs() CacheTTLs {
	return CacheTTLs{
		Rankings:  time.Hour,
		Countries: time.Hour,
		Stats:     60 * time.Second,
	}
}

// CachedClient is a read-through cache over DataClient. Only successful payloads are
// cached. Private and all-visibility reads always go to the backend, as do contribution
// calendars read with a session token, since those may include private counts.
type CachedClient struct {
	data   *DataClient
	cache  Cache
	ttls   CacheTTLs
	logger *zap.Logger
}

// NewCachedClient wraps data with cache. A nil cache disables caching.
func NewCachedClient(data *DataClient, cache Cache, ttls CacheTTLs, logger ...*zap.Logger) *CachedClient {
	resolvedLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		resolvedLogger = logger[0]
	}
	return &CachedClient{
		data:   data,
		cache:  cache,
		ttls:   ttls,
		logger: resolvedLogger,
	}
}

// Data returns the uncached client.
func (c *CachedClient) Data() *DataClient {
	return c.data
}

// Contributions reads the contribution calendar through the cache.
func (c *CachedClient) Contributions(ctx context.Context, login string, year int) (Contributions, error) {
	if SessionToken(ctx) != "" {
		return c.data.Contributions(ctx, login, year)
	}
	key := cacheKey("contributions", login, yearKey(year))
	return readThrough(ctx, c, key, c.ttls.Stats, func(ctx context.Context) (Contributions, error) {
		return c.data.Contributions(ctx, login, year)
	})
}

// CodeFrequency reads weekly line changes through the cache.
func (c *CachedClient) CodeFrequency(ctx context.Context, login, visibility string) (CodeFrequency, error) {
	if !cacheableVisibility(visibility) {
		return c.data.CodeFrequency(ctx, login, visibility)
	}
	key := cacheKey("code-frequency", login, visibility)
	return readThrough(ctx, c, key, c.ttls.Stats, func(ctx context.Context) (CodeFrequency, error) {
		return c.data.CodeFrequency(ctx, login, visibility)
	})
}

// FunStats reads the commit-timing summary through the cache.
func (c *CachedClient) FunStats(ctx context.Context, login, visibility string) (FunStats, error) {
	if !cacheableVisibility(visibility) {
		return c.data.FunStats(ctx, login, visibility)
	}
	key := cacheKey("fun", login, visibility)
	return readThrough(ctx, c, key, c.ttls.Stats, func(ctx context.Context) (FunStats, error) {
		return c.data.FunStats(ctx, login, visibility)
	})
}

// RepoCommits reads per-repository commit counts through the cache.
func (c *CachedClient) RepoCommits(ctx context.Context, login, visibility string) (RepoCommits, error) {
	if !cacheableVisibility(visibility) {
		return c.data.RepoCommits(ctx, login, visibility)
	}
	key := cacheKey("repo-commits", login, visibility)
	return readThrough(ctx, c, key, c.ttls.Stats, func(ctx context.Context) (RepoCommits, error) {
		return c.data.RepoCommits(ctx, login, visibility)
	})
}

// CountryRanking reads a country ranking through the cache.
func (c *CachedClient) CountryRanking(ctx context.Context, country string) (Ranking, error) {
	key := cacheKey("ranking", "country", country)
	return readThrough(ctx, c, key, c.ttls.Rankings, func(ctx context.Context) (Ranking, error) {
		return c.data.CountryRanking(ctx, country)
	})
}

// GlobalRanking reads the global ranking through the cache.
func (c *CachedClient) GlobalRanking(ctx context.Context, limit int) (Ranking, error) {
	key := cacheKey("ranking", "global", strconv.Itoa(limit))
	return readThrough(ctx, c, key, c.ttls.Rankings, func(ctx context.Context) (Ranking, error) {
		return c.data.GlobalRanking(ctx, limit)
	})
}

// UserRanking reads a user's country placement through the cache.
func (c *CachedClient) UserRanking(ctx context.Context, login string) (UserRanking, error) {
	key := cacheKey("ranking", "user", login)
	return readThrough(ctx, c, key, c.ttls.Rankings, func(ctx context.Context) (UserRanking, error) {
		return c.data.UserRanking(ctx, login)
	})
}

// SearchUsers runs a user search through the cache.
func (c *CachedClient) SearchUsers(ctx context.Context, query string) (UserSearch, error) {
	key := cacheKey("search", query)
	return readThrough(ctx, c, key, c.ttls.Stats, func(ctx context.Context) (UserSearch, error) {
		return c.data.SearchUsers(ctx, query)
	})
}

// AvailableCountries reads the country list through the cache.
func (c *CachedClient) AvailableCountries(ctx context.Context) ([]string, error) {
	return readThrough(ctx, c, cacheKey("countries"), c.ttls.Countries, c.data.AvailableCountries)
}

func readThrough[T any](ctx context.Context, c *CachedClient, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if c.cache == nil || ttl <= 0 {
		return load(ctx)
	}

	raw, found, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("stats cache read failed", zap.String("key", key), zap.Error(err))
	}
	if found {
		var cached T
		if decodeErr := json.Unmarshal(raw, &cached); decodeErr == nil {
			return cached, nil
		}
		c.logger.Warn("stats cache entry undecodable", zap.String("key", key))
	}

	loaded, err := load(ctx)
	if err != nil {
		return zero, err
	}

	encoded, err := json.Marshal(loaded)
	if err != nil {
		return loaded, nil
	}
	if err := c.cache.Set(ctx, key, encoded, ttl); err != nil {
		c.logger.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
	}
	return loaded, nil
}

func cacheKey(parts ...string) string {
	normalized := make([]string, 0, len(parts)+1)
	normalized = append(normalized, "statsapi")
	for _, part := range parts {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(part)))
	}
	return strings.Join(normalized, ":")
}

func yearKey(year int) string {
	if year <= 0 {
		return "trailing"
	}
	return strconv.Itoa(year)
}

func cacheableVisibility(visibility string) bool {
	trimmed := strings.TrimSpace(visibility)
	return trimmed == "" || strings.EqualFold(trimmed, "public")
}
