package prices

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Cache is a short-freshness store for current quotes.
type Cache interface {
	Get(ctx context.Context, key string) (decimal.Decimal, bool)
	Set(ctx context.Context, key string, value decimal.Decimal, ttl time.Duration)
}

type memoryEntry struct {
	value   decimal.Decimal
	expires time.Time
}

// MemoryCache is the in-process cache backend.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryCache constructs an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get returns the cached value if it has not expired.
func (c *MemoryCache) Get(_ context.Context, key string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expires) {
		delete(c.entries, key)
		return decimal.Decimal{}, false
	}
	return entry.value, true
}

// Set stores a value with a ttl.
func (c *MemoryCache) Set(_ context.Context, key string, value decimal.Decimal, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, expires: time.Now().Add(ttl)}
}

// RedisCache backs the quote cache with redis so multiple processes share
// freshness.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the cached value when present and parseable. Redis errors are
// treated as cache misses.
func (c *RedisCache) Get(ctx context.Context, key string) (decimal.Decimal, bool) {
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return decimal.Decimal{}, false
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return value, true
}

// Set stores a value with a ttl, best effort.
func (c *RedisCache) Set(ctx context.Context, key string, value decimal.Decimal, ttl time.Duration) {
	c.client.Set(ctx, key, value.String(), ttl)
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
)
