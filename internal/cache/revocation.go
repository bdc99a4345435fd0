package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"portal-api/internal/config"
	"portal-api/internal/util"
)

const revokedPrefix = "revoked_jti:"

// RevocationCache is the fast path in front of the sessions table: a revoked
// token id is visible here immediately after logout. Misses always fall
// through to the database, so the cache only has to be best-effort.
type RevocationCache interface {
	MarkRevoked(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// NewRevocationCache returns a redis-backed cache when REDIS_URL is set and a
// process-local cache otherwise.
func NewRevocationCache(cfg *config.Config) RevocationCache {
	if cfg.Redis.URL == "" {
		util.Info("Session revocation cache running in-memory (no REDIS_URL)")
		return NewMemoryRevocationCache()
	}
	client, err := NewRedisClient(cfg)
	if err != nil {
		util.Warn("Redis unavailable, falling back to in-memory revocation cache", util.ErrorField(err))
		return NewMemoryRevocationCache()
	}
	return &redisRevocationCache{client: client}
}

type redisRevocationCache struct {
	client *redis.Client
}

func (c *redisRevocationCache) MarkRevoked(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return c.client.Set(ctx, revokedPrefix+jti, "1", ttl).Err()
}

func (c *redisRevocationCache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.client.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevocationCache is the zero-dependency fallback.
type MemoryRevocationCache struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

func NewMemoryRevocationCache() *MemoryRevocationCache {
	return &MemoryRevocationCache{entries: make(map[string]time.Time)}
}

func (c *MemoryRevocationCache) MarkRevoked(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[jti] = time.Now().Add(ttl)
	// Opportunistic sweep keeps the map from growing with expired entries.
	if len(c.entries) > 1024 {
		now := time.Now()
		for key, deadline := range c.entries {
			if deadline.Before(now) {
				delete(c.entries, key)
			}
		}
	}
	return nil
}

func (c *MemoryRevocationCache) IsRevoked(_ context.Context, jti string) (bool, error) {
	c.mu.RLock()
	deadline, ok := c.entries[jti]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return deadline.After(time.Now()), nil
}
