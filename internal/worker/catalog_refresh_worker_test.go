package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/GTDGit/catalog_api/internal/models"
)

type countingCatalog struct {
	forced atomic.Int32
}

func (c *countingCatalog) GetProducts(ctx context.Context, forceRefresh bool) ([]models.Product, error) {
	if forceRefresh {
		c.forced.Add(1)
	}
	return nil, nil
}

func TestCatalogRefreshWorker_RefreshesUntilCancelled(t *testing.T) {
	cat := &countingCatalog{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewCatalogRefreshWorker(cat, 10*time.Millisecond).Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return cat.forced.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestCatalogRefreshWorker_DisabledInterval(t *testing.T) {
	cat := &countingCatalog{}
	NewCatalogRefreshWorker(cat, 0).Start(context.Background())
	assert.Zero(t, cat.forced.Load())
}
