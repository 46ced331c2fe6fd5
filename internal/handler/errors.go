package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/catalog_api/internal/utils"
)

// respondServiceError maps a service error to the response envelope.
func respondServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, utils.ErrProductNotFound):
		utils.Error(c, 404, "PRODUCT_NOT_FOUND", "Product not found")
	case errors.Is(err, utils.ErrDuplicateProductID):
		utils.Error(c, 409, "DUPLICATE_PRODUCT_ID", "A product with this id already exists")
	case errors.Is(err, utils.ErrInvalidPrice):
		utils.Error(c, 400, "INVALID_PRICE", err.Error())
	case errors.Is(err, utils.ErrInvalidProduct):
		utils.Error(c, 400, "INVALID_REQUEST", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		utils.Error(c, 503, "REQUEST_CANCELLED", "Request was cancelled")
	default:
		_ = c.Error(err)
		log.Error().Err(err).Str("path", c.FullPath()).Msg(fallback)
		utils.Error(c, 500, "INTERNAL_ERROR", fallback)
	}
}
