package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/catalog_api/internal/catalog"
	"github.com/GTDGit/catalog_api/internal/models"
	"github.com/GTDGit/catalog_api/internal/repository"
	"github.com/GTDGit/catalog_api/internal/utils"
)

// memStore is an in-memory ProductStore.
type memStore struct {
	mu        sync.Mutex
	products  []models.Product
	deleted   []string
	listErr   error
	createErr map[string]error
	creates   int
	// afterCreate runs after every successful Create, outside the lock.
	afterCreate func()
}

func (m *memStore) List(ctx context.Context, filter repository.ProductFilter) ([]models.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	out := catalog.FilterByCategory(m.products, filter.Category)
	return append([]models.Product(nil), out...), len(out), nil
}

func (m *memStore) ListDeletedIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...), nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.products {
		if m.products[i].ID == id {
			p := m.products[i]
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) Create(ctx context.Context, p *models.Product) error {
	if err := m.create(p); err != nil {
		return err
	}
	if m.afterCreate != nil {
		m.afterCreate()
	}
	return nil
}

func (m *memStore) create(p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if err := m.createErr[p.Name]; err != nil {
		return err
	}
	m.products = append(m.products, *p)
	kept := m.deleted[:0]
	for _, id := range m.deleted {
		if id != p.ID {
			kept = append(kept, id)
		}
	}
	m.deleted = kept
	return nil
}

func (m *memStore) Update(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.products {
		if m.products[i].ID == p.ID {
			m.products[i] = *p
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.products[:0]
	for _, p := range m.products {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	m.products = kept
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memStore) AppendImages(ctx context.Context, id string, urls []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.products {
		if m.products[i].ID == id {
			p := &m.products[i]
			if p.Image == "" {
				p.Image, urls = urls[0], urls[1:]
			}
			p.Gallery = append(p.Gallery, urls...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Exists(ctx context.Context, id string) (bool, error) {
	_, err := m.GetByID(ctx, id)
	return err == nil, nil
}

func (m *memStore) find(id string) (models.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return catalog.FindByID(m.products, id)
}

// liveCatalog merges the store with a baseline on every call.
type liveCatalog struct {
	store         *memStore
	baseline      []models.Product
	invalidations int
}

func (c *liveCatalog) GetProducts(ctx context.Context, forceRefresh bool) ([]models.Product, error) {
	remote, _, _ := c.store.List(ctx, repository.ProductFilter{})
	deleted, _ := c.store.ListDeletedIDs(ctx)
	return catalog.Merge(remote, c.baseline, deleted), nil
}

func (c *liveCatalog) Invalidate(ctx context.Context) error {
	c.invalidations++
	return nil
}

func (c *liveCatalog) Baseline() []models.Product { return c.baseline }

func bike(id, name, category string) models.Product {
	return models.Product{
		ID:       id,
		Name:     name,
		Category: category,
		Price:    decimal.NewFromInt(100),
		MRP:      decimal.NewFromInt(120),
		Stock:    models.Stock{Quantity: 10, Status: models.StockInStock},
	}
}

func TestProductService_FetchCatalog(t *testing.T) {
	store := &memStore{
		products: []models.Product{bike("r1", "Remote", "bikes")},
		deleted:  []string{"gone"},
	}
	svc := NewProductService(store)

	snap, err := svc.FetchCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Products, 1)
	assert.Equal(t, "r1", snap.Products[0].ID)
	assert.Equal(t, []string{"gone"}, snap.DeletedIDs)
}

func TestProductService_FetchCatalogFailsWhenEitherReadFails(t *testing.T) {
	store := &memStore{listErr: errors.New("connection refused")}
	svc := NewProductService(store)

	_, err := svc.FetchCatalog(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list products")
}

func TestProductService_GetProductsAndGetProduct(t *testing.T) {
	store := &memStore{products: []models.Product{bike("r1", "Remote", "bikes")}}
	cat := &liveCatalog{store: store, baseline: []models.Product{bike("s1", "Helmet", "accessories")}}
	svc := NewProductService(store)
	svc.SetCatalogCache(cat)

	all, err := svc.GetProducts(context.Background(), "", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bikes, err := svc.GetProducts(context.Background(), "bikes", false)
	require.NoError(t, err)
	require.Len(t, bikes, 1)
	assert.Equal(t, "r1", bikes[0].ID)

	p, err := svc.GetProduct(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Helmet", p.Name)

	_, err = svc.GetProduct(context.Background(), "missing")
	assert.ErrorIs(t, err, utils.ErrProductNotFound)
}

func TestProductService_InvalidateCache(t *testing.T) {
	store := &memStore{}
	cat := &liveCatalog{store: store}
	svc := NewProductService(store)
	svc.SetCatalogCache(cat)

	require.NoError(t, svc.InvalidateCache(context.Background()))
	assert.Equal(t, 1, cat.invalidations)
}
