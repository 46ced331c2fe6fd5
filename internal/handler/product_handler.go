package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/catalog_api/internal/models"
	"github.com/GTDGit/catalog_api/internal/utils"
)

// ProductReader is the read side of the catalog.
type ProductReader interface {
	GetProducts(ctx context.Context, category string, forceRefresh bool) ([]models.Product, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
}

// ProductHandler serves the public catalog.
type ProductHandler struct {
	productService ProductReader
}

// NewProductHandler constructs a ProductHandler.
func NewProductHandler(productService ProductReader) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// GetProducts handles GET /v1/products. The merged catalog is returned whole
// unless page or limit is given.
func (h *ProductHandler) GetProducts(c *gin.Context) {
	category := c.Query("category")
	refresh, _ := strconv.ParseBool(c.Query("refresh"))

	products, err := h.productService.GetProducts(c.Request.Context(), category, refresh)
	if err != nil {
		respondServiceError(c, err, "Failed to get products")
		return
	}

	if c.Query("page") == "" && c.Query("limit") == "" {
		utils.Success(c, 200, "Products retrieved successfully", gin.H{
			"products": products,
		})
		return
	}

	page := 1
	limit := 50
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	total := len(products)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	utils.SuccessWithPagination(c, 200, "Products retrieved successfully", gin.H{
		"products": products[start:end],
	}, page, limit, total)
}

// GetProduct handles GET /v1/products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	product, err := h.productService.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "Failed to get product")
		return
	}

	utils.Success(c, 200, "Product retrieved", product)
}
