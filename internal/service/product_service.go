package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/GTDGit/catalog_api/internal/cache"
	"github.com/GTDGit/catalog_api/internal/catalog"
	"github.com/GTDGit/catalog_api/internal/models"
	"github.com/GTDGit/catalog_api/internal/repository"
	"github.com/GTDGit/catalog_api/internal/utils"
)

// ProductStore is the remote catalog store.
type ProductStore interface {
	List(ctx context.Context, filter repository.ProductFilter) ([]models.Product, int, error)
	ListDeletedIDs(ctx context.Context) ([]string, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, p *models.Product) error
	Update(ctx context.Context, p *models.Product) error
	Delete(ctx context.Context, id string) error
	AppendImages(ctx context.Context, id string, urls []string) (bool, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// CatalogCache serves the merged catalog.
type CatalogCache interface {
	GetProducts(ctx context.Context, forceRefresh bool) ([]models.Product, error)
	Invalidate(ctx context.Context) error
	Baseline() []models.Product
}

// ProductService provides the read side of the catalog.
type ProductService struct {
	productRepo ProductStore
	catalog     CatalogCache
}

// NewProductService constructs a ProductService. The catalog cache is wired
// afterwards with SetCatalogCache because the cache fetches through this service.
func NewProductService(productRepo ProductStore) *ProductService {
	return &ProductService{productRepo: productRepo}
}

// SetCatalogCache sets the cache used by the read operations.
func (s *ProductService) SetCatalogCache(c CatalogCache) {
	s.catalog = c
}

// FetchCatalog reads every remote product and tombstone. Both reads run
// concurrently and either failure fails the fetch.
func (s *ProductService) FetchCatalog(ctx context.Context) (*cache.CatalogSnapshot, error) {
	var snap cache.CatalogSnapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		products, _, err := s.productRepo.List(gctx, repository.ProductFilter{})
		if err != nil {
			return fmt.Errorf("list products: %w", err)
		}
		snap.Products = products
		return nil
	})
	g.Go(func() error {
		ids, err := s.productRepo.ListDeletedIDs(gctx)
		if err != nil {
			return fmt.Errorf("list deleted products: %w", err)
		}
		snap.DeletedIDs = ids
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetProducts returns the canonical catalog, optionally narrowed to a category.
func (s *ProductService) GetProducts(ctx context.Context, category string, forceRefresh bool) ([]models.Product, error) {
	products, err := s.catalog.GetProducts(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}
	return catalog.FilterByCategory(products, category), nil
}

// GetProduct returns one product from the canonical catalog.
func (s *ProductService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	products, err := s.catalog.GetProducts(ctx, false)
	if err != nil {
		return nil, err
	}
	p, ok := catalog.FindByID(products, id)
	if !ok {
		return nil, utils.ErrProductNotFound
	}
	return &p, nil
}

// InvalidateCache drops the cached catalog.
func (s *ProductService) InvalidateCache(ctx context.Context) error {
	return s.catalog.Invalidate(ctx)
}
