package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/catalog_api/internal/models"
)

// CatalogRefresher is the cache the worker keeps warm.
type CatalogRefresher interface {
	GetProducts(ctx context.Context, forceRefresh bool) ([]models.Product, error)
}

// CatalogRefreshWorker periodically forces a catalog fetch so readers rarely
// pay for a cold cache.
type CatalogRefreshWorker struct {
	catalog  CatalogRefresher
	interval time.Duration
}

// NewCatalogRefreshWorker constructs a CatalogRefreshWorker.
func NewCatalogRefreshWorker(catalog CatalogRefresher, interval time.Duration) *CatalogRefreshWorker {
	return &CatalogRefreshWorker{
		catalog:  catalog,
		interval: interval,
	}
}

// Start begins the refresh loop and listens for context cancellation. A
// non-positive interval disables the worker.
func (w *CatalogRefreshWorker) Start(ctx context.Context) {
	if w.interval <= 0 {
		log.Info().Msg("Catalog refresh worker disabled")
		return
	}
	log.Info().Dur("interval", w.interval).Msg("Starting catalog refresh worker")

	// Warm the cache immediately
	w.run(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Catalog refresh worker stopped")
			return
		}
	}
}

func (w *CatalogRefreshWorker) run(ctx context.Context) {
	start := time.Now()
	products, err := w.catalog.GetProducts(ctx, true)
	if err != nil {
		log.Error().Err(err).Msg("Failed to refresh catalog")
		return
	}

	log.Debug().Int("products", len(products)).Dur("duration", time.Since(start)).Msg("Catalog refresh completed")
}
