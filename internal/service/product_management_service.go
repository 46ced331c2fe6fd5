package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/GTDGit/catalog_api/internal/catalog"
	"github.com/GTDGit/catalog_api/internal/models"
	"github.com/GTDGit/catalog_api/internal/repository"
	"github.com/GTDGit/catalog_api/internal/sse"
	"github.com/GTDGit/catalog_api/internal/utils"
)

// lowStockThreshold is the quantity at or below which stock is reported low.
const lowStockThreshold = 5

// ProductManagementService handles admin product CRUD against the remote store.
type ProductManagementService struct {
	productRepo ProductStore
	catalog     CatalogCache
	notifier    sse.Notifier
}

// NewProductManagementService constructs a ProductManagementService.
func NewProductManagementService(productRepo ProductStore, catalog CatalogCache) *ProductManagementService {
	return &ProductManagementService{productRepo: productRepo, catalog: catalog, notifier: sse.NopNotifier{}}
}

// SetNotifier sets the SSE notifier told after every catalog change.
func (s *ProductManagementService) SetNotifier(notifier sse.Notifier) {
	if notifier == nil {
		notifier = sse.NopNotifier{}
	}
	s.notifier = notifier
}

// ProductRequest is the admin create/update payload.
type ProductRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name" binding:"required"`
	Category    string            `json:"category" binding:"required"`
	SubCategory *string           `json:"subCategory"`
	Price       decimal.Decimal   `json:"price"`
	MRP         decimal.Decimal   `json:"mrp"`
	Image       string            `json:"image"`
	Gallery     []string          `json:"gallery"`
	Stock       models.Stock      `json:"stock"`
	Colors      []string          `json:"colors"`
	Specs       map[string]string `json:"specs"`
	Description string            `json:"description"`
	Brand       string            `json:"brand"`
	AgeRange    string            `json:"ageRange"`
	Tags        []string          `json:"tags"`
	IsFeatured  bool              `json:"isFeatured"`
	IsNew       bool              `json:"isNew"`
}

func (r *ProductRequest) toProduct() *models.Product {
	return &models.Product{
		ID:          strings.TrimSpace(r.ID),
		Name:        strings.TrimSpace(r.Name),
		Category:    strings.TrimSpace(r.Category),
		SubCategory: r.SubCategory,
		Price:       r.Price,
		MRP:         r.MRP,
		Image:       r.Image,
		Gallery:     models.StringList(r.Gallery),
		Stock:       r.Stock,
		Colors:      models.StringList(r.Colors),
		Specs:       models.Specs(r.Specs),
		Description: r.Description,
		Brand:       r.Brand,
		AgeRange:    r.AgeRange,
		Tags:        models.StringList(r.Tags),
		IsFeatured:  r.IsFeatured,
		IsNew:       r.IsNew,
	}
}

// ValidateProduct checks the invariants every stored product must satisfy and
// fills in a derived stock status when none was given.
func ValidateProduct(p *models.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", utils.ErrInvalidProduct)
	}
	if p.Price.IsNegative() || p.MRP.IsNegative() {
		return fmt.Errorf("%w: price and mrp must not be negative", utils.ErrInvalidPrice)
	}
	if !p.PriceWithinMRP() {
		return fmt.Errorf("%w: price %s exceeds mrp %s", utils.ErrInvalidPrice, p.Price.String(), p.MRP.String())
	}
	if p.Stock.Quantity < 0 {
		return fmt.Errorf("%w: stock quantity must not be negative", utils.ErrInvalidProduct)
	}
	if p.Stock.Status == "" {
		p.Stock.Status = StockStatusFor(p.Stock.Quantity)
	}
	if !p.Stock.Status.Valid() {
		return fmt.Errorf("%w: unknown stock status %q", utils.ErrInvalidProduct, p.Stock.Status)
	}
	return nil
}

// StockStatusFor derives a stock status from a quantity.
func StockStatusFor(quantity int) models.StockStatus {
	switch {
	case quantity <= 0:
		return models.StockOutOfStock
	case quantity <= lowStockThreshold:
		return models.StockLowStock
	default:
		return models.StockInStock
	}
}

// ListRemote returns one page of remote products.
func (s *ProductManagementService) ListRemote(ctx context.Context, filter repository.ProductFilter) ([]models.Product, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	return s.productRepo.List(ctx, filter)
}

// CreateProduct stores a new remote product. An empty id is generated.
func (s *ProductManagementService) CreateProduct(ctx context.Context, req *ProductRequest) (*models.Product, error) {
	p := req.toProduct()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if err := ValidateProduct(p); err != nil {
		return nil, err
	}

	exists, err := s.productRepo.Exists(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, utils.ErrDuplicateProductID
	}

	if err := s.productRepo.Create(ctx, p); err != nil {
		return nil, mapStoreError(err)
	}

	log.Info().Str("product_id", p.ID).Msg("Product created")
	s.invalidate(ctx, "product.created")
	return p, nil
}

// UpdateProduct replaces a product. A baseline-only product is copied into the
// remote store, where it overrides the baseline definition.
func (s *ProductManagementService) UpdateProduct(ctx context.Context, id string, req *ProductRequest) (*models.Product, error) {
	p := req.toProduct()
	p.ID = id
	if err := ValidateProduct(p); err != nil {
		return nil, err
	}

	err := s.productRepo.Update(ctx, p)
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		if _, ok := s.findInCatalog(ctx, id); !ok {
			return nil, utils.ErrProductNotFound
		}
		if err := s.productRepo.Create(ctx, p); err != nil {
			return nil, mapStoreError(err)
		}
		log.Info().Str("product_id", id).Msg("Baseline product overridden")
	default:
		return nil, mapStoreError(err)
	}

	log.Info().Str("product_id", id).Msg("Product updated")
	s.invalidate(ctx, "product.updated")
	return p, nil
}

// DeleteProduct removes a product from the canonical catalog by recording a
// tombstone. Deleting a baseline product only writes the tombstone.
func (s *ProductManagementService) DeleteProduct(ctx context.Context, id string) error {
	if _, ok := s.findInCatalog(ctx, id); !ok {
		exists, err := s.productRepo.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return utils.ErrProductNotFound
		}
	}

	if err := s.productRepo.Delete(ctx, id); err != nil {
		return err
	}

	log.Info().Str("product_id", id).Msg("Product deleted")
	s.invalidate(ctx, "product.deleted")
	return nil
}

func (s *ProductManagementService) findInCatalog(ctx context.Context, id string) (models.Product, bool) {
	products, err := s.catalog.GetProducts(ctx, false)
	if err != nil {
		return models.Product{}, false
	}
	return catalog.FindByID(products, id)
}

func (s *ProductManagementService) invalidate(ctx context.Context, reason string) {
	if err := s.catalog.Invalidate(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate catalog cache after product change")
		return
	}
	s.notifier.NotifyCatalogInvalidated(reason)
}

// mapStoreError translates PostgreSQL constraint violations to domain errors.
func mapStoreError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return utils.ErrDuplicateProductID
		case "23514":
			return fmt.Errorf("%w: %s", utils.ErrInvalidPrice, pqErr.Message)
		}
	}
	return err
}
