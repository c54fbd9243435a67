package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iconforge/iconforge/pkg/cache"
)

var items = []string{"Laptop", "Headphones", "Smartwatch", "Drone"}

// newTestCache connects to the server named by ICONFORGE_TEST_REDIS_ADDR, or
// to an in-process miniredis when unset, and isolates the test under a random
// key prefix.
func newTestCache(t *testing.T) *Cache {
	t.Helper()
	addr := os.Getenv("ICONFORGE_TEST_REDIS_ADDR")
	if addr == "" {
		addr = miniredis.RunT(t).Addr()
	}
	ctx := context.Background()
	c, err := New(ctx, Options{Addr: addr, KeyPrefix: "iconforge-test-" + uuid.NewString()})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Clear(ctx, false)
		_ = c.Close()
	})
	return c
}

func TestFullKeyPrefix(t *testing.T) {
	c := newWithClient(nil, "")
	assert.Equal(t, "iconforge:expand:abc", c.fullKey("abc"))

	c = newWithClient(nil, "staging")
	assert.Equal(t, "staging:expand:abc", c.fullKey("abc"))
}

func TestPutAndGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := cache.NewKey("Gadgets", "")

	require.NoError(t, c.Put(ctx, key, items, time.Hour))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, got.Found())
	assert.Equal(t, items, got.Entry.Items)

	got, err = c.Get(ctx, cache.NewKey("Gadgets", "#123456"))
	require.NoError(t, err)
	assert.Equal(t, cache.Miss, got.Status)
}

func TestExpiredByClock(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, "k", items, time.Hour))
	now = now.Add(2 * time.Hour)

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, cache.Expired, got.Status)
}

func TestNativeTTLEvicts(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	c, err := New(ctx, Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Put(ctx, "k", items, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("iconforge:expand:k"))

	mr.FastForward(2 * time.Minute)

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, cache.Miss, got.Status)
}

func TestGetUndecodableEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	c, err := New(ctx, Options{Addr: mr.Addr(), KeyPrefix: "t"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, mr.Set("t:expand:k", "not json"))

	got, err := c.Get(ctx, "k")
	require.Error(t, err)
	assert.Equal(t, cache.Miss, got.Status)
}

func TestNewUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), Options{Addr: addr, DialTimeout: time.Second})
	require.Error(t, err)
}

func TestStatsAndClear(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Put(ctx, "a", items, time.Hour)
	_ = c.Put(ctx, "b", items, time.Hour)
	_, _ = c.Get(ctx, "a")
	_, _ = c.Get(ctx, "missing")

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Entries)
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)

	require.NoError(t, c.Clear(ctx, true))
	stats, _ = c.Stats(ctx)
	assert.EqualValues(t, 2, stats.Entries)

	require.NoError(t, c.Clear(ctx, false))
	stats, _ = c.Stats(ctx)
	assert.EqualValues(t, 0, stats.Entries)
}
