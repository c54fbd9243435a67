package icons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iconforge/iconforge/pkg/cache"
	"github.com/iconforge/iconforge/pkg/cache/memory"
	"github.com/iconforge/iconforge/pkg/expander"
	"github.com/iconforge/iconforge/pkg/imagegen"
	"github.com/iconforge/iconforge/pkg/metrics"
	"github.com/iconforge/iconforge/pkg/models"
	"github.com/iconforge/iconforge/pkg/style"
)

var fruits = []string{"Apple", "Banana", "Cherry", "Grape"}

type expandFunc func(ctx context.Context, topic, colors string) ([]string, error)

type countingExpander struct {
	calls atomic.Int32
	fn    expandFunc
}

func (c *countingExpander) Expand(ctx context.Context, topic, colors string) ([]string, error) {
	c.calls.Add(1)
	return c.fn(ctx, topic, colors)
}

type generateFunc func(ctx context.Context, prompt string) (string, error)

type countingGenerator struct {
	calls atomic.Int32
	fn    generateFunc
}

func (c *countingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	c.calls.Add(1)
	return c.fn(ctx, prompt)
}

func staticItems(items ...string) *countingExpander {
	return &countingExpander{fn: func(context.Context, string, string) ([]string, error) {
		return items, nil
	}}
}

func echoGenerator() *countingGenerator {
	return &countingGenerator{fn: func(_ context.Context, prompt string) (string, error) {
		return "https://img.test/" + prompt, nil
	}}
}

type memRecorder struct {
	mu   sync.Mutex
	recs []models.GenerationRecord
}

func (r *memRecorder) Record(_ context.Context, rec models.GenerationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func (r *memRecorder) all() []models.GenerationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.GenerationRecord(nil), r.recs...)
}

func newOrchestrator(t *testing.T, e expander.Expander, g imagegen.Generator, cfg Config, opts ...Option) *Orchestrator {
	t.Helper()
	store := memory.New(memory.Options{})
	t.Cleanup(func() { _ = store.Close() })
	return New(e, g, store, cfg, opts...)
}

func TestGenerate_Mocks(t *testing.T) {
	o := newOrchestrator(t, expander.Mock{}, imagegen.Mock{}, Config{})

	resp, err := o.Generate(context.Background(), models.GenerationRequest{Topic: "Fruit", StyleID: 2, Colors: "#FF5733"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.StyleID)
	require.Len(t, resp.Icons, expander.ItemCount)

	tmpl, err := style.Resolve(2)
	require.NoError(t, err)
	for i, icon := range resp.Icons {
		assert.Equal(t, fmt.Sprintf("Fruit - Variation %d", i+1), icon.Item)
		assert.Equal(t, tmpl.Render(icon.Item), icon.Prompt)
		assert.Contains(t, icon.ImageURL, "https://placehold.co/")
	}
}

func TestGenerate_InvalidInput(t *testing.T) {
	cases := []struct {
		name string
		req  models.GenerationRequest
	}{
		{"empty topic", models.GenerationRequest{StyleID: 1}},
		{"whitespace topic", models.GenerationRequest{Topic: "   \t", StyleID: 1}},
		{"missing style", models.GenerationRequest{Topic: "Fruit"}},
		{"negative style", models.GenerationRequest{Topic: "Fruit", StyleID: -1}},
		{"unknown style", models.GenerationRequest{Topic: "Fruit", StyleID: 999}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := staticItems(fruits...)
			g := echoGenerator()
			o := newOrchestrator(t, e, g, Config{})

			resp, err := o.Generate(context.Background(), tc.req)
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Equal(t, KindInvalidInput, KindOf(err))
			assert.Zero(t, e.calls.Load())
			assert.Zero(t, g.calls.Load())
		})
	}
}

func TestGenerate_UnknownStyleMessage(t *testing.T) {
	o := newOrchestrator(t, staticItems(fruits...), echoGenerator(), Config{})
	_, err := o.Generate(context.Background(), models.GenerationRequest{Topic: "Fruit", StyleID: 999})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid style id")
	assert.ErrorIs(t, err, style.ErrNotFound)
}

func TestGenerate_CachesExpansion(t *testing.T) {
	e := staticItems(fruits...)
	g := echoGenerator()
	o := newOrchestrator(t, e, g, Config{})
	ctx := context.Background()

	first, err := o.Generate(ctx, models.GenerationRequest{Topic: "Fruit", StyleID: 1})
	require.NoError(t, err)
	second, err := o.Generate(ctx, models.GenerationRequest{Topic: "  fruit ", StyleID: 3})
	require.NoError(t, err)

	assert.Equal(t, int32(1), e.calls.Load())
	assert.Equal(t, int32(8), g.calls.Load())
	for i := range first.Icons {
		assert.Equal(t, first.Icons[i].Item, second.Icons[i].Item)
	}
}

func TestGenerate_ColorsArePartOfCacheKey(t *testing.T) {
	e := staticItems(fruits...)
	o := newOrchestrator(t, e, echoGenerator(), Config{})
	ctx := context.Background()

	_, err := o.Generate(ctx, models.GenerationRequest{Topic: "Fruit", StyleID: 1})
	require.NoError(t, err)
	_, err = o.Generate(ctx, models.GenerationRequest{Topic: "Fruit", StyleID: 1, Colors: "red"})
	require.NoError(t, err)
	_, err = o.Generate(ctx, models.GenerationRequest{Topic: "Fruit", StyleID: 1, Colors: " RED "})
	require.NoError(t, err)

	assert.Equal(t, int32(2), e.calls.Load())
}

func TestGenerate_ReexpandsAfterExpiry(t *testing.T) {
	e := staticItems(fruits...)
	o := newOrchestrator(t, e, echoGenerator(), Config{CacheTTL: 20 * time.Millisecond})
	ctx := context.Background()

	_, err := o.Generate(ctx, models.GenerationRequest{Topic: "Fruit", StyleID: 1})
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	resp, err := o.Generate(ctx, models.GenerationRequest{Topic: "Fruit", StyleID: 1})
	require.NoError(t, err)
	assert.Len(t, resp.Icons, expander.ItemCount)
	assert.Equal(t, int32(2), e.calls.Load())
}

func TestGenerate_PreservesItemOrder(t *testing.T) {
	// Earlier items finish last.
	delays := map[string]time.Duration{
		"Apple":  40 * time.Millisecond,
		"Banana": 30 * time.Millisecond,
		"Cherry": 20 * time.Millisecond,
		"Grape":  0,
	}
	g := &countingGenerator{fn: func(ctx context.Context, prompt string) (string, error) {
		for item, d := range delays {
			if strings.Contains(prompt, item) {
				time.Sleep(d)
				return "https://img.test/" + item, nil
			}
		}
		return "", errors.New("unknown prompt")
	}}
	o := newOrchestrator(t, staticItems(fruits...), g, Config{})

	resp, err := o.Generate(context.Background(), models.GenerationRequest{Topic: "Fruit", StyleID: 1})
	require.NoError(t, err)
	for i, icon := range resp.Icons {
		assert.Equal(t, fruits[i], icon.Item)
		assert.Equal(t, "https://img.test/"+fruits[i], icon.ImageURL)
		assert.Contains(t, icon.Prompt, fruits[i])
	}
}

func TestGenerate_GeneratesConcurrently(t *testing.T) {
	var started atomic.Int32
	all := make(chan struct{})
	g := &countingGenerator{fn: func(ctx context.Context, prompt string) (string, error) {
		if started.Add(1) == int32(expander.ItemCount) {
			close(all)
		}
		select {
		case <-all:
			return "https://img.test/ok", nil
		case <-time.After(2 * time.Second):
			return "", errors.New("generator calls were not concurrent")
		}
	}}
	o := newOrchestrator(t, staticItems(fruits...), g, Config{})

	_, err := o.Generate(context.Background(), models.GenerationRequest{Topic: "Fruit", StyleID: 1})
	require.NoError(t, err)
}

func TestGenerate_ExpansionFailure(t *testing.T) {
	e := &countingExpander{fn: func(context.Context, string, string) ([]string, error) {
		return nil, errors.New("gemini: 429 Too Many Requests: quota exceeded")
	}}
	g := echoGenerator()
	o := newOrchestrator(t, e, g, Config{})

	resp, err := o.Generate(context.Background(), models.GenerationRequest{Topic: "Fruit", StyleID: 1})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, KindExpansion, KindOf(err))
	assert.Equal(t, "gemini: 429 Too Many Requests: quota exceeded", err.Error())
	assert.True(t, IsRateLimited(err))
	assert.Zero(t, g.calls.Load())
}

func TestGenerate_MalformedExpansionIsNotCached(t *testing.T) {
	cases := map[string][]string{
		"too few":    {"Apple", "Banana", "Cherry"},
		"too many":   {"Apple", "Banana", "Cherry", "Grape", "Kiwi"},
		"empty item": {"Apple", " ", "Cherry", "Grape"},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			e := staticItems(items...)
			g := echoGenerator()
			o := newOrchestrator(t, e, g, Config{})
			ctx := context.Background()

			for range 2 {
				_, err := o.Generate(ctx, models.GenerationRequest{Topic: "Fruit", StyleID: 1})
				require.Error(t, err)
				assert.Equal(t, KindExpansion, KindOf(err))
			}
			assert.Equal(t, int32(2), e.calls.Load())
			assert.Zero(t, g.calls.Load())
		})
	}
}

func TestGenerate_ExpansionTimeout(t *testing.T) {
	e := &countingExpander{fn: func(ctx context.Context, _, _ string) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	o := newOrchestrator(t, e, echoGenerator(), Config{ExpansionTimeout: 10 * time.Millisecond})

	_, err := o.Generate(context.Background(), models.GenerationRequest{Topic: "Fruit", StyleID: 1})
	require.Error(t, err)
	assert.Equal(t, KindExpansion, KindOf(err))
	assert.Contains(t, err.Error(), "timed out")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerate_GenerationFailureIsAllOrNothing(t *testing.T) {
	g := &countingGenerator{fn: func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "Cherry") {
			return "", errors.New("replicate: 500 Internal Server Error: model crashed")
		}
		<-ctx.Done()
		return "", ctx.Err()
	}}
	o := newOrchestrator(t, staticItems(fruits...), g, Config{})

	start := time.Now()
	resp, err := o.Generate(context.Background(), models.GenerationRequest{Topic: "Fruit", StyleID: 1})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, KindGeneration, KindOf(err))
	assert.Equal(t, "replicate: 500 Internal Server Error: model crashed", err.Error())
	assert.False(t, IsRateLimited(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGenerate_EmptyImageReference(t *testing.T) {
	g := &countingGenerator{fn: func(context.Context, string) (string, error) { return "", nil }}
	o := newOrchestrator(t, staticItems(fruits...), g, Config{})

	_, err := o.Generate(context.Background(), models.GenerationRequest{Topic: "Fruit", StyleID: 1})
	require.Error(t, err)
	assert.Equal(t, KindGeneration, KindOf(err))
}

func TestGenerate_GenerationTimeout(t *testing.T) {
	g := &countingGenerator{fn: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	o := newOrchestrator(t, staticItems(fruits...), g, Config{GenerationTimeout: 10 * time.Millisecond})

	_, err := o.Generate(context.Background(), models.GenerationRequest{Topic: "Fruit", StyleID: 1})
	require.Error(t, err)
	assert.Equal(t, KindGeneration, KindOf(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestGenerate_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := &countingExpander{fn: func(ctx context.Context, _, _ string) ([]string, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	o := newOrchestrator(t, e, echoGenerator(), Config{})

	_, err := o.Generate(ctx, models.GenerationRequest{Topic: "Fruit", StyleID: 1})
	require.Error(t, err)
	assert.Equal(t, KindUnexpected, KindOf(err))
	assert.Equal(t, "request cancelled", err.Error())
}

type brokenStore struct {
	cache.Store
	puts atomic.Int32
}

func (b *brokenStore) Get(context.Context, cache.Key) (cache.Lookup, error) {
	return cache.Lookup{}, errors.New("store offline")
}

func (b *brokenStore) Put(context.Context, cache.Key, []string, time.Duration) error {
	b.puts.Add(1)
	return errors.New("store offline")
}

func TestGenerate_CacheFailuresDegradeToMiss(t *testing.T) {
	e := staticItems(fruits...)
	store := &brokenStore{}
	o := New(e, echoGenerator(), store, Config{})

	for range 2 {
		resp, err := o.Generate(context.Background(), models.GenerationRequest{Topic: "Fruit", StyleID: 1})
		require.NoError(t, err)
		assert.Len(t, resp.Icons, expander.ItemCount)
	}
	assert.Equal(t, int32(2), e.calls.Load())
	assert.Equal(t, int32(2), store.puts.Load())
}

func TestGenerate_RecordsHistoryAndMetrics(t *testing.T) {
	rec := &memRecorder{}
	m := metrics.New("iconforge_test")
	o := newOrchestrator(t, staticItems(fruits...), echoGenerator(), Config{}, WithRecorder(rec), WithMetrics(m))
	ctx := context.Background()

	_, err := o.Generate(ctx, models.GenerationRequest{RequestID: "req-1", Topic: "Fruit", StyleID: 1})
	require.NoError(t, err)
	_, err = o.Generate(ctx, models.GenerationRequest{RequestID: "req-2", Topic: "Fruit", StyleID: 2})
	require.NoError(t, err)
	_, err = o.Generate(ctx, models.GenerationRequest{Topic: "Fruit", StyleID: 42})
	require.Error(t, err)

	recs := rec.all()
	require.Len(t, recs, 3)

	assert.Equal(t, "req-1", recs[0].RequestID)
	assert.Equal(t, models.OutcomeSucceeded, recs[0].Outcome)
	assert.False(t, recs[0].CacheHit)
	assert.Equal(t, expander.ItemCount, recs[0].IconCount)

	assert.True(t, recs[1].CacheHit)

	assert.NotEmpty(t, recs[2].RequestID)
	assert.Equal(t, models.OutcomeFailed, recs[2].Outcome)
	assert.Equal(t, KindInvalidInput.String(), recs[2].FailureKind)
	assert.Zero(t, recs[2].IconCount)
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(errors.New("replicate: 429 Too Many Requests")))
	assert.True(t, IsRateLimited(errors.New("RESOURCE_EXHAUSTED: quota")))
	assert.True(t, IsRateLimited(errors.New("Rate limit reached")))
	assert.False(t, IsRateLimited(errors.New("500 Internal Server Error")))
	assert.False(t, IsRateLimited(nil))
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindGeneration, Message: "boom"})
	assert.Equal(t, KindGeneration, KindOf(err))
	assert.Equal(t, KindUnexpected, KindOf(errors.New("plain")))
	assert.True(t, KindInvalidInput.ClientFault())
	assert.False(t, KindExpansion.ClientFault())
}

func TestGenerate_MalformedCachedEntryIsReexpanded(t *testing.T) {
	store := memory.New(memory.Options{})
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	key := cache.NewKey("Fruit", "")
	require.NoError(t, store.Put(ctx, key, []string{"Apple", ""}, time.Hour))

	e := staticItems(fruits...)
	g := echoGenerator()
	o := New(e, g, store, Config{})

	resp, err := o.Generate(ctx, models.GenerationRequest{Topic: "Fruit", StyleID: 1})
	require.NoError(t, err)
	require.Len(t, resp.Icons, expander.ItemCount)
	for i, icon := range resp.Icons {
		assert.Equal(t, fruits[i], icon.Item)
	}
	assert.Equal(t, int32(1), e.calls.Load())
	assert.Equal(t, int32(expander.ItemCount), g.calls.Load())

	lookup, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, lookup.Found())
	assert.Equal(t, fruits, lookup.Entry.Items)
}
