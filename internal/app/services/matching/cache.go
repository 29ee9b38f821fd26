package matching

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/match"
)

// Cache stores recent match results keyed by source URL and platform set, so
// repeated lookups do not hammer the merchant platforms.
type Cache interface {
	Get(ctx context.Context, key string) (match.Result, bool)
	Set(ctx context.Context, key string, res match.Result, ttl time.Duration)
}

// RedisCache backs the match cache with Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a Redis-backed cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (match.Result, bool) {
	raw, err := c.client.Get(ctx, "match:"+key).Bytes()
	if err != nil {
		return match.Result{}, false
	}
	var res match.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return match.Result{}, false
	}
	return res, true
}

func (c *RedisCache) Set(ctx context.Context, key string, res match.Result, ttl time.Duration) {
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	c.client.Set(ctx, "match:"+key, raw, ttl)
}

// MemoryCache is the in-process fallback used when no Redis address is
// configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	res       match.Result
	expiresAt time.Time
}

// NewMemoryCache constructs an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (match.Result, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return match.Result{}, false
	}
	return entry.res, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, res match.Result, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Opportunistically drop expired entries so the map does not grow without
	// bound.
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{res: res, expiresAt: now.Add(ttl)}
}
