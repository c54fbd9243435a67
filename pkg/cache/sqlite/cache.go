// Package sqlite is the SQLite-backed expansion cache backend. Entries
// survive process restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconforge/iconforge/pkg/cache"
	"github.com/iconforge/iconforge/pkg/models"
)

// Cache is an expansion cache backed by SQLite.
type Cache struct {
	db     *sql.DB
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

var _ cache.Store = (*Cache)(nil)

const createCacheTable = `
CREATE TABLE IF NOT EXISTS expansion_cache (
	cache_key TEXT PRIMARY KEY,
	items TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_expansion_cache_expires ON expansion_cache(expires_at);
`

// New opens (or creates) the cache database at dbPath.
func New(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db, now: time.Now}, nil
}

// Get retrieves a cached expansion.
func (c *Cache) Get(ctx context.Context, key cache.Key) (cache.Lookup, error) {
	var raw string
	var createdAt, expiresAt int64

	err := c.db.QueryRowContext(ctx,
		`SELECT items, created_at, expires_at FROM expansion_cache WHERE cache_key = ?`,
		string(key),
	).Scan(&raw, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		c.misses.Add(1)
		return cache.Lookup{Status: cache.Miss}, nil
	}
	if err != nil {
		c.misses.Add(1)
		return cache.Lookup{Status: cache.Miss}, fmt.Errorf("cache get: %w", err)
	}

	entry := models.ExpansionEntry{
		CreatedAt: time.Unix(0, createdAt).UTC(),
		ExpiresAt: time.Unix(0, expiresAt).UTC(),
	}
	if entry.Expired(c.now()) {
		c.misses.Add(1)
		return cache.Lookup{Status: cache.Expired}, nil
	}
	if err := json.Unmarshal([]byte(raw), &entry.Items); err != nil {
		c.misses.Add(1)
		return cache.Lookup{Status: cache.Miss}, fmt.Errorf("decode cached items: %w", err)
	}

	c.hits.Add(1)
	return cache.Lookup{Status: cache.Hit, Entry: entry}, nil
}

// Put stores an expansion in the cache.
func (c *Cache) Put(ctx context.Context, key cache.Key, items []string, ttl time.Duration) error {
	entry := cache.NewEntry(items, c.now(), ttl)
	data, err := json.Marshal(entry.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO expansion_cache (cache_key, items, created_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		string(key), string(data), entry.CreatedAt.UnixNano(), entry.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Stats returns cache performance metrics.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expansion_cache`).Scan(&count)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Backend: "sqlite",
		Entries: count,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Clear removes cache entries. If expiredOnly is true, only expired entries are removed.
func (c *Cache) Clear(ctx context.Context, expiredOnly bool) error {
	var err error
	if expiredOnly {
		_, err = c.db.ExecContext(ctx, `DELETE FROM expansion_cache WHERE expires_at <= ?`, c.now().UnixNano())
	} else {
		_, err = c.db.ExecContext(ctx, `DELETE FROM expansion_cache`)
	}
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
