package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/catalog_api/internal/models"
)

type fakeFetcher struct {
	mu       sync.Mutex
	snapshot *CatalogSnapshot
	err      error
	calls    atomic.Int32
	started  chan struct{}
	release  chan struct{}
}

func (f *fakeFetcher) FetchCatalog(ctx context.Context) (*CatalogSnapshot, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, f.err
}

func (f *fakeFetcher) set(snapshot *CatalogSnapshot, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot, f.err = snapshot, err
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var baseline = []models.Product{
	{ID: "s1", Name: "Static One"},
	{ID: "s2", Name: "Static Two"},
}

func productIDs(products []models.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

func newTestCache(f *fakeFetcher, store SnapshotStore) (*CatalogCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	c := NewCatalogCache(f, store, baseline, 30*time.Minute)
	c.SetClock(clock.Now)
	return c, clock
}

func TestCatalogCache_MergesFetchedSnapshot(t *testing.T) {
	f := &fakeFetcher{snapshot: &CatalogSnapshot{
		Products:   []models.Product{{ID: "r1"}},
		DeletedIDs: []string{"s1"},
	}}
	c, _ := newTestCache(f, nil)

	products, err := c.GetProducts(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "s2"}, productIDs(products))
}

func TestCatalogCache_ServesFreshEntryWithoutFetching(t *testing.T) {
	f := &fakeFetcher{snapshot: &CatalogSnapshot{Products: []models.Product{{ID: "r1"}}}}
	c, clock := newTestCache(f, nil)
	ctx := context.Background()

	_, err := c.GetProducts(ctx, false)
	require.NoError(t, err)
	clock.Advance(29 * time.Minute)
	_, err = c.GetProducts(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.calls.Load())
}

func TestCatalogCache_RefetchesWhenStale(t *testing.T) {
	f := &fakeFetcher{snapshot: &CatalogSnapshot{Products: []models.Product{{ID: "r1"}}}}
	c, clock := newTestCache(f, nil)
	ctx := context.Background()

	_, err := c.GetProducts(ctx, false)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	f.set(&CatalogSnapshot{Products: []models.Product{{ID: "r2"}}}, nil)

	products, err := c.GetProducts(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load())
	assert.Equal(t, []string{"r2", "s1", "s2"}, productIDs(products))
}

func TestCatalogCache_ForceRefreshIgnoresTTL(t *testing.T) {
	f := &fakeFetcher{snapshot: &CatalogSnapshot{}}
	c, _ := newTestCache(f, nil)
	ctx := context.Background()

	_, err := c.GetProducts(ctx, false)
	require.NoError(t, err)
	_, err = c.GetProducts(ctx, true)
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.calls.Load())
}

func TestCatalogCache_CoalescesConcurrentFetches(t *testing.T) {
	f := &fakeFetcher{
		snapshot: &CatalogSnapshot{Products: []models.Product{{ID: "r1"}}},
		started:  make(chan struct{}, 4),
		release:  make(chan struct{}),
	}
	c, _ := newTestCache(f, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([][]models.Product, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			products, err := c.GetProducts(ctx, true)
			assert.NoError(t, err)
			results[i] = products
		}(i)
		if i == 0 {
			<-f.started
		}
	}

	// Give the second caller time to join the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, results[0], results[1])
}

func TestCatalogCache_StaleWhileError(t *testing.T) {
	f := &fakeFetcher{snapshot: &CatalogSnapshot{Products: []models.Product{{ID: "r1"}}}}
	c, clock := newTestCache(f, nil)
	ctx := context.Background()

	_, err := c.GetProducts(ctx, false)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	f.set(nil, errors.New("store unavailable"))

	products, err := c.GetProducts(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "s1", "s2"}, productIDs(products))
}

func TestCatalogCache_FallsBackToBaseline(t *testing.T) {
	f := &fakeFetcher{err: errors.New("store unavailable")}
	c, _ := newTestCache(f, nil)

	products, err := c.GetProducts(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, productIDs(products))
}

func TestCatalogCache_InvalidateForcesFetch(t *testing.T) {
	f := &fakeFetcher{snapshot: &CatalogSnapshot{Products: []models.Product{{ID: "r1"}}}}
	c, _ := newTestCache(f, nil)
	ctx := context.Background()

	_, err := c.GetProducts(ctx, false)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx))
	_, err = c.GetProducts(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.calls.Load())
}

func TestCatalogCache_InvalidateDuringFetchDropsResult(t *testing.T) {
	f := &fakeFetcher{
		snapshot: &CatalogSnapshot{Products: []models.Product{{ID: "old"}}},
		started:  make(chan struct{}, 4),
		release:  make(chan struct{}),
	}
	c, _ := newTestCache(f, nil)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.GetProducts(ctx, false)
	}()
	<-f.started
	require.NoError(t, c.Invalidate(ctx))
	close(f.release)
	<-done

	f.set(&CatalogSnapshot{Products: []models.Product{{ID: "new"}}}, nil)
	products, err := c.GetProducts(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "new", products[0].ID)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestCatalogCache_CallerCancellation(t *testing.T) {
	f := &fakeFetcher{
		snapshot: &CatalogSnapshot{},
		started:  make(chan struct{}, 4),
		release:  make(chan struct{}),
	}
	c, _ := newTestCache(f, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetProducts(ctx, false)
		errCh <- err
	}()
	<-f.started
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)
	close(f.release)
}

func newMiniredisStore(t *testing.T) (*RedisSnapshotStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSnapshotStore(NewRedisClientFrom(client)), mr
}

func TestRedisSnapshotStore_RoundTrip(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()

	entry, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, entry)

	want := &models.CacheEntry{
		Products:   []models.Product{{ID: "r1", Name: "Remote"}},
		DeletedIDs: []string{"s1"},
		Timestamp:  time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, want))
	assert.True(t, mr.Exists(catalogSnapshotKey))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "r1", got.Products[0].ID)
	assert.Equal(t, want.DeletedIDs, got.DeletedIDs)
	assert.True(t, want.Timestamp.Equal(got.Timestamp))

	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists(catalogSnapshotKey))
}

func TestCatalogCache_UsesPersistedSnapshotAfterRestart(t *testing.T) {
	store, _ := newMiniredisStore(t)
	ctx := context.Background()

	f := &fakeFetcher{snapshot: &CatalogSnapshot{Products: []models.Product{{ID: "r1"}}}}
	first, clock := newTestCache(f, store)
	_, err := first.GetProducts(ctx, false)
	require.NoError(t, err)

	// A new process sees the persisted entry and, while it is fresh, does not fetch.
	restarted := NewCatalogCache(f, store, baseline, 30*time.Minute)
	restarted.SetClock(clock.Now)
	products, err := restarted.GetProducts(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "s1", "s2"}, productIDs(products))
	assert.Equal(t, int32(1), f.calls.Load())

	// When the remote store is down, the persisted entry is served even if stale.
	clock.Advance(3 * time.Hour)
	f.set(nil, errors.New("down"))
	third := NewCatalogCache(f, store, baseline, 30*time.Minute)
	third.SetClock(clock.Now)
	products, err = third.GetProducts(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "s1", "s2"}, productIDs(products))
}

func TestCatalogCache_InvalidateClearsPersistedSnapshot(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()

	f := &fakeFetcher{snapshot: &CatalogSnapshot{Products: []models.Product{{ID: "r1"}}}}
	c, _ := newTestCache(f, store)
	_, err := c.GetProducts(ctx, false)
	require.NoError(t, err)
	require.True(t, mr.Exists(catalogSnapshotKey))

	require.NoError(t, c.Invalidate(ctx))
	assert.False(t, mr.Exists(catalogSnapshotKey))
}
