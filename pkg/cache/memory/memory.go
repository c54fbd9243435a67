// Package memory is the in-process expansion cache backend.
//
// Entries expire lazily on Get and are swept by a background janitor. The
// cache is unbounded unless MaxEntries is set, in which case the least
// recently used entry is evicted on overflow.
package memory

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iconforge/iconforge/pkg/cache"
	"github.com/iconforge/iconforge/pkg/models"
)

// Options configures a Cache.
type Options struct {
	MaxEntries      int
	CleanupInterval time.Duration
}

type element struct {
	key   cache.Key
	entry models.ExpansionEntry
}

// Cache is a mutex-guarded TTL map with optional LRU bound.
type Cache struct {
	mu         sync.Mutex
	entries    map[cache.Key]*list.Element
	lru        *list.List
	maxEntries int
	now        func() time.Time

	hits   atomic.Int64
	misses atomic.Int64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ cache.Store = (*Cache)(nil)

// New creates a Cache and starts its janitor when CleanupInterval > 0.
func New(opts Options) *Cache {
	c := &Cache{
		entries:    make(map[cache.Key]*list.Element),
		lru:        list.New(),
		maxEntries: opts.MaxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if opts.CleanupInterval > 0 {
		go c.janitor(opts.CleanupInterval)
	} else {
		close(c.done)
	}
	return c
}

// Get returns the entry for key, dropping it if it has expired.
func (c *Cache) Get(_ context.Context, key cache.Key) (cache.Lookup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return cache.Lookup{Status: cache.Miss}, nil
	}

	e := el.Value.(*element)
	if e.entry.Expired(c.now()) {
		c.removeLocked(el)
		c.misses.Add(1)
		return cache.Lookup{Status: cache.Expired}, nil
	}

	c.lru.MoveToFront(el)
	c.hits.Add(1)
	entry := e.entry
	entry.Items = append([]string(nil), entry.Items...)
	return cache.Lookup{Status: cache.Hit, Entry: entry}, nil
}

// Put stores items under key with expiry now + ttl.
func (c *Cache) Put(_ context.Context, key cache.Key, items []string, ttl time.Duration) error {
	entry := cache.NewEntry(items, c.now(), ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value = &element{key: key, entry: entry}
		c.lru.MoveToFront(el)
		return nil
	}

	c.entries[key] = c.lru.PushFront(&element{key: key, entry: entry})
	for c.maxEntries > 0 && c.lru.Len() > c.maxEntries {
		c.removeLocked(c.lru.Back())
	}
	return nil
}

// Stats returns cache performance metrics.
func (c *Cache) Stats(_ context.Context) (models.CacheStats, error) {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return models.CacheStats{
		Backend: "memory",
		Entries: int64(n),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Clear removes cache entries. If expiredOnly is true, only expired entries are removed.
func (c *Cache) Clear(_ context.Context, expiredOnly bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !expiredOnly {
		c.entries = make(map[cache.Key]*list.Element)
		c.lru.Init()
		return nil
	}
	c.sweepLocked()
	return nil
}

// Close stops the janitor.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	<-c.done
	return nil
}

func (c *Cache) janitor(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.sweepLocked()
			c.mu.Unlock()
		}
	}
}

func (c *Cache) sweepLocked() {
	now := c.now()
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*element).entry.Expired(now) {
			c.removeLocked(el)
		}
		el = prev
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*element)
	delete(c.entries, e.key)
	c.lru.Remove(el)
}
