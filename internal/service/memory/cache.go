package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/redis/go-redis/v9"

	"shopchat/internal/config"
)

// Cache non-durable customer -> last product map. Implementations must be safe
// for concurrent use.
type Cache interface {
	Get(ctx context.Context, customerID int64) (productID int64, ok bool, err error)
	Set(ctx context.Context, customerID, productID int64) error
	Delete(ctx context.Context, customerID int64) error
}

// NewCache builds the cache selected by cfg. client is required for the redis cache.
func NewCache(cfg config.MemoryConfig, client *redis.Client) (Cache, error) {
	switch cfg.Cache {
	case "", "local":
		return NewLocalCache(cfg.TTL), nil
	case "bigcache":
		return NewBigCache(cfg.TTL)
	case "redis":
		if client == nil {
			return nil, errors.New("redis cache requires a redis client")
		}
		return NewRedisCache(client, cfg.Prefix, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported memory cache: %q", cfg.Cache)
	}
}

type localEntry struct {
	productID int64
	expiresAt time.Time
}

// LocalCache lock-protected map. A zero ttl keeps entries forever.
type LocalCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]localEntry
	now     func() time.Time
}

// NewLocalCache creates an in-process cache
func NewLocalCache(ttl time.Duration) *LocalCache {
	return &LocalCache{
		ttl:     ttl,
		entries: make(map[int64]localEntry),
		now:     time.Now,
	}
}

// Get returns the cached product, dropping an expired entry
func (c *LocalCache) Get(ctx context.Context, customerID int64) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[customerID]
	if !ok {
		return 0, false, nil
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		delete(c.entries, customerID)
		return 0, false, nil
	}
	return e.productID, true, nil
}

// Set caches productID for the customer
func (c *LocalCache) Set(ctx context.Context, customerID, productID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := localEntry{productID: productID}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.entries[customerID] = e
	return nil
}

// Delete drops the customer entry
func (c *LocalCache) Delete(ctx context.Context, customerID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, customerID)
	return nil
}

// BigCache sharded off-heap cache for large customer counts
type BigCache struct {
	cache *bigcache.BigCache
}

// NewBigCache creates a bigcache-backed cache evicting entries after ttl
func NewBigCache(ttl time.Duration) (*BigCache, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	cache, err := bigcache.New(context.Background(), bigcache.DefaultConfig(ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to create bigcache: %w", err)
	}
	return &BigCache{cache: cache}, nil
}

// Get returns the cached product
func (c *BigCache) Get(ctx context.Context, customerID int64) (int64, bool, error) {
	raw, err := c.cache.Get(strconv.FormatInt(customerID, 10))
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	productID, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cache entry for customer %d: %w", customerID, err)
	}
	return productID, true, nil
}

// Set caches productID for the customer
func (c *BigCache) Set(ctx context.Context, customerID, productID int64) error {
	return c.cache.Set(strconv.FormatInt(customerID, 10), []byte(strconv.FormatInt(productID, 10)))
}

// Delete drops the customer entry. A missing entry is not an error.
func (c *BigCache) Delete(ctx context.Context, customerID int64) error {
	err := c.cache.Delete(strconv.FormatInt(customerID, 10))
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil
	}
	return err
}

// Close releases the cache
func (c *BigCache) Close() error {
	return c.cache.Close()
}

// RedisCache cache shared by every orchestrator instance
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a redis-backed cache. A zero ttl keeps keys forever.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(customerID int64) string {
	return c.prefix + strconv.FormatInt(customerID, 10)
}

// Get returns the cached product
func (c *RedisCache) Get(ctx context.Context, customerID int64) (int64, bool, error) {
	productID, err := c.client.Get(ctx, c.key(customerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return productID, true, nil
}

// Set caches productID for the customer with the configured ttl
func (c *RedisCache) Set(ctx context.Context, customerID, productID int64) error {
	return c.client.Set(ctx, c.key(customerID), productID, c.ttl).Err()
}

// Delete drops the customer key
func (c *RedisCache) Delete(ctx context.Context, customerID int64) error {
	return c.client.Del(ctx, c.key(customerID)).Err()
}
