package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/GTDGit/catalog_api/internal/catalog"
	"github.com/GTDGit/catalog_api/internal/models"
)

// DefaultCatalogTTL is how long a fetched catalog is served without refetching.
const DefaultCatalogTTL = 30 * time.Minute

const catalogFlightKey = "catalog"

// CatalogSnapshot is the raw result of one remote store read.
type CatalogSnapshot struct {
	Products   []models.Product
	DeletedIDs []string
}

// CatalogFetcher reads the remote products and tombstones.
type CatalogFetcher interface {
	FetchCatalog(ctx context.Context) (*CatalogSnapshot, error)
}

// CatalogCache memoizes the merged catalog.
//
// Entries younger than the TTL are served from memory. Concurrent misses share a
// single fetch. A failed fetch serves the last good entry regardless of age, or
// the static baseline when there has never been one.
type CatalogCache struct {
	fetcher  CatalogFetcher
	store    SnapshotStore
	baseline []models.Product
	ttl      time.Duration
	now      func() time.Time

	mu         sync.Mutex
	entry      *models.CacheEntry
	loaded     bool
	generation uint64

	group singleflight.Group
}

// NewCatalogCache creates a CatalogCache. A nil store disables persistence and a
// non-positive ttl selects DefaultCatalogTTL.
func NewCatalogCache(fetcher CatalogFetcher, store SnapshotStore, baseline []models.Product, ttl time.Duration) *CatalogCache {
	if store == nil {
		store = NopSnapshotStore{}
	}
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &CatalogCache{
		fetcher:  fetcher,
		store:    store,
		baseline: baseline,
		ttl:      ttl,
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (c *CatalogCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Baseline returns the static baseline the cache falls back to.
func (c *CatalogCache) Baseline() []models.Product {
	return c.baseline
}

// GetProducts returns the canonical product list. With forceRefresh the TTL is
// ignored and a fetch is always started (or joined).
func (c *CatalogCache) GetProducts(ctx context.Context, forceRefresh bool) ([]models.Product, error) {
	if !forceRefresh {
		if entry := c.current(ctx); entry != nil && c.fresh(entry) {
			return c.merge(entry), nil
		}
	}

	// The fetch outlives any single caller: late joiners must not inherit the
	// first caller's cancellation.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(catalogFlightKey, func() (interface{}, error) {
		return c.refresh(fetchCtx), nil
	})

	select {
	case res := <-ch:
		products := res.Val.([]models.Product)
		return append([]models.Product(nil), products...), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the in-memory and persisted entry so the next call fetches.
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	c.entry = nil
	c.loaded = true
	c.generation++
	c.mu.Unlock()

	c.group.Forget(catalogFlightKey)

	if err := c.store.Clear(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to clear persisted catalog snapshot")
		return err
	}
	log.Info().Msg("Catalog cache invalidated")
	return nil
}

// refresh performs one fetch and never fails: on error it degrades to the last
// good entry or the baseline.
func (c *CatalogCache) refresh(ctx context.Context) []models.Product {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	start := time.Now()
	snap, err := c.fetcher.FetchCatalog(ctx)
	if err != nil {
		if prior := c.current(ctx); prior != nil {
			log.Warn().Err(err).Time("cached_at", prior.Timestamp).Msg("Catalog fetch failed, serving last known catalog")
			return c.merge(prior)
		}
		log.Warn().Err(err).Int("baseline", len(c.baseline)).Msg("Catalog fetch failed with nothing cached, serving static baseline")
		return catalog.Merge(nil, c.baseline, nil)
	}

	entry := &models.CacheEntry{
		Products:   snap.Products,
		DeletedIDs: snap.DeletedIDs,
		Timestamp:  c.clock(),
	}

	c.mu.Lock()
	current := c.generation == gen
	if current {
		c.entry = entry
		c.loaded = true
	}
	c.mu.Unlock()

	if !current {
		log.Debug().Msg("Catalog invalidated during fetch, result not cached")
		return c.merge(entry)
	}

	if err := c.store.Save(ctx, entry); err != nil {
		log.Warn().Err(err).Msg("Failed to persist catalog snapshot")
	}

	log.Debug().
		Int("remote", len(entry.Products)).
		Int("deleted", len(entry.DeletedIDs)).
		Dur("duration", time.Since(start)).
		Msg("Catalog refreshed")
	return c.merge(entry)
}

// current returns the in-memory entry, consulting the persisted slot once.
func (c *CatalogCache) current(ctx context.Context) *models.CacheEntry {
	c.mu.Lock()
	if c.entry != nil || c.loaded {
		e := c.entry
		c.mu.Unlock()
		return e
	}
	gen := c.generation
	c.mu.Unlock()

	entry, err := c.store.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load persisted catalog snapshot")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen && c.entry == nil {
		c.entry = entry
		c.loaded = true
	}
	return c.entry
}

func (c *CatalogCache) fresh(entry *models.CacheEntry) bool {
	return c.clock().Sub(entry.Timestamp) < c.ttl
}

func (c *CatalogCache) clock() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

func (c *CatalogCache) merge(entry *models.CacheEntry) []models.Product {
	return catalog.Merge(entry.Products, c.baseline, entry.DeletedIDs)
}
