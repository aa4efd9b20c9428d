// internal/resolver/cache.go
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

/*
 * Response caches for external fetches.
 *
 * MemoryCache is process-local and guarded by one mutex; concurrent writers
 * to the same key are last-writer-wins. RedisCache shares responses across
 * replicas and stores the decoded JSON document re-encoded as JSON.
 *
 * A cache failure never fails a resolution: Get reports a miss and Set
 * drops the value.
 */

// MinCacheTTL is the floor applied to every configured TTL.
const MinCacheTTL = time.Second

// Cache stores decoded JSON responses by key.
type Cache interface {
	Get(ctx context.Context, key string) (any, bool)
	Set(ctx context.Context, key string, value any)
}

type memoryEntry struct {
	expiresAt time.Time
	value     any
}

// MemoryCache is an in-process TTL cache. Set sweeps expired entries at
// most once per TTL, so keys that are never read again are still dropped.
type MemoryCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	items     map[string]memoryEntry
	now       func() time.Time
	nextSweep time.Time
}

// NewMemoryCache creates a cache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:   clampTTL(ttl),
		items: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.After(c.now()) {
		delete(c.items, key)
		return nil, false
	}
	return entry.value, true
}

func (c *MemoryCache) Set(_ context.Context, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !now.Before(c.nextSweep) {
		for k, entry := range c.items {
			if !entry.expiresAt.After(now) {
				delete(c.items, k)
			}
		}
		c.nextSweep = now.Add(c.ttl)
	}
	c.items[key] = memoryEntry{expiresAt: now.Add(c.ttl), value: value}
}

// RedisCache stores responses in Redis under a key prefix.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects to the Redis instance at url.
func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisCacheFromClient(redis.NewClient(opts), ttl), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "decider:external:",
		ttl:    clampTTL(ttl),
		logger: slog.Default(),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (any, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("redis cache get failed", "error", err)
		}
		return nil, false
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false
	}
	return value, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		c.logger.Debug("redis cache set failed", "error", err)
	}
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func clampTTL(ttl time.Duration) time.Duration {
	if ttl < MinCacheTTL {
		return MinCacheTTL
	}
	return ttl
}
