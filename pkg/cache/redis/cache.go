// Package redis is the Redis-backed expansion cache backend, for deployments
// that run several iconforge processes behind one cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/iconforge/iconforge/pkg/cache"
	"github.com/iconforge/iconforge/pkg/models"
)

const scanBatch = 256

// Options configures the Redis connection.
type Options struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Cache stores expansion entries as JSON values with a native Redis TTL.
type Cache struct {
	client *goredis.Client
	prefix string
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

var _ cache.Store = (*Cache)(nil)

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, opts Options) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return newWithClient(client, opts.KeyPrefix), nil
}

func newWithClient(client *goredis.Client, prefix string) *Cache {
	if prefix == "" {
		prefix = "iconforge"
	}
	return &Cache{client: client, prefix: prefix + ":expand:", now: time.Now}
}

func (c *Cache) fullKey(key cache.Key) string {
	return c.prefix + string(key)
}

// Get retrieves a cached expansion.
func (c *Cache) Get(ctx context.Context, key cache.Key) (cache.Lookup, error) {
	raw, err := c.client.Get(ctx, c.fullKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		c.misses.Add(1)
		return cache.Lookup{Status: cache.Miss}, nil
	}
	if err != nil {
		c.misses.Add(1)
		return cache.Lookup{Status: cache.Miss}, fmt.Errorf("cache get: %w", err)
	}

	var entry models.ExpansionEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.misses.Add(1)
		return cache.Lookup{Status: cache.Miss}, fmt.Errorf("decode cache entry: %w", err)
	}
	// Redis expires keys itself; this covers clock skew and in-flight reads.
	if entry.Expired(c.now()) {
		c.misses.Add(1)
		return cache.Lookup{Status: cache.Expired}, nil
	}

	c.hits.Add(1)
	return cache.Lookup{Status: cache.Hit, Entry: entry}, nil
}

// Put stores an expansion with expiry now + ttl.
func (c *Cache) Put(ctx context.Context, key cache.Key, items []string, ttl time.Duration) error {
	entry := cache.NewEntry(items, c.now(), ttl)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, c.fullKey(key), data, entry.ExpiresAt.Sub(entry.CreatedAt)).Err(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Stats returns cache performance metrics. Entries counts keys under the prefix.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	var count int64
	err := c.scan(ctx, func(keys []string) error {
		count += int64(len(keys))
		return nil
	})
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Backend: "redis",
		Entries: count,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Clear removes cache entries under the prefix. With expiredOnly, entries
// whose recorded expiry has passed are removed and the rest kept.
func (c *Cache) Clear(ctx context.Context, expiredOnly bool) error {
	err := c.scan(ctx, func(keys []string) error {
		if !expiredOnly {
			return c.client.Del(ctx, keys...).Err()
		}
		now := c.now()
		for _, k := range keys {
			raw, err := c.client.Get(ctx, k).Bytes()
			if errors.Is(err, goredis.Nil) {
				continue
			}
			if err != nil {
				return err
			}
			var entry models.ExpansionEntry
			if json.Unmarshal(raw, &entry) != nil || entry.Expired(now) {
				if err := c.client.Del(ctx, k).Err(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

func (c *Cache) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close releases the client connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
