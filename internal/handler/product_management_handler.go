package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/catalog_api/internal/middleware"
	"github.com/GTDGit/catalog_api/internal/models"
	"github.com/GTDGit/catalog_api/internal/repository"
	"github.com/GTDGit/catalog_api/internal/service"
	"github.com/GTDGit/catalog_api/internal/utils"
)

// ProductManager is the admin write side of the catalog.
type ProductManager interface {
	ListRemote(ctx context.Context, filter repository.ProductFilter) ([]models.Product, int, error)
	CreateProduct(ctx context.Context, req *service.ProductRequest) (*models.Product, error)
	UpdateProduct(ctx context.Context, id string, req *service.ProductRequest) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// CacheInvalidator drops the cached catalog.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context) error
}

// InvalidationNotifier is told when an admin drops the catalog cache.
type InvalidationNotifier interface {
	NotifyCatalogInvalidated(reason string)
}

// ProductManagementHandler handles admin product endpoints.
type ProductManagementHandler struct {
	productMgmtService ProductManager
	cache              CacheInvalidator
	notifier           InvalidationNotifier
}

// NewProductManagementHandler constructs a ProductManagementHandler.
func NewProductManagementHandler(productMgmtService ProductManager, cache CacheInvalidator, notifier InvalidationNotifier) *ProductManagementHandler {
	return &ProductManagementHandler{productMgmtService: productMgmtService, cache: cache, notifier: notifier}
}

// ListProducts handles GET /v1/admin/products. It lists the remote store only.
func (h *ProductManagementHandler) ListProducts(c *gin.Context) {
	filter := repository.ProductFilter{
		Category: c.Query("category"),
		Search:   c.Query("search"),
		Page:     1,
		Limit:    50,
	}
	if page := c.Query("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil {
			filter.Page = p
		}
	}
	if limit := c.Query("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			filter.Limit = l
		}
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}

	products, total, err := h.productMgmtService.ListRemote(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err, "Failed to retrieve products")
		return
	}

	utils.SuccessWithPagination(c, 200, "Products retrieved", products, filter.Page, filter.Limit, total)
}

// CreateProduct handles POST /v1/admin/products
func (h *ProductManagementHandler) CreateProduct(c *gin.Context) {
	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	product, err := h.productMgmtService.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, err, "Failed to create product")
		return
	}

	utils.Success(c, 201, "Product created successfully", product)
}

// UpdateProduct handles PUT /v1/admin/products/:id
func (h *ProductManagementHandler) UpdateProduct(c *gin.Context) {
	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	product, err := h.productMgmtService.UpdateProduct(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondServiceError(c, err, "Failed to update product")
		return
	}

	utils.Success(c, 200, "Product updated successfully", product)
}

// DeleteProduct handles DELETE /v1/admin/products/:id
func (h *ProductManagementHandler) DeleteProduct(c *gin.Context) {
	if err := h.productMgmtService.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		respondServiceError(c, err, "Failed to delete product")
		return
	}

	utils.Success(c, 200, "Product deleted successfully", nil)
}

// InvalidateCache handles POST /v1/admin/products/cache/invalidate
func (h *ProductManagementHandler) InvalidateCache(c *gin.Context) {
	if err := h.cache.InvalidateCache(c.Request.Context()); err != nil {
		respondServiceError(c, err, "Failed to invalidate product cache")
		return
	}

	log.Info().Int("admin_id", middleware.AdminUserID(c)).Msg("Product cache invalidated by admin")
	h.notifier.NotifyCatalogInvalidated("admin")
	utils.Success(c, 200, "Product cache invalidated", nil)
}
