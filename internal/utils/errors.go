package utils

import "errors"

// Common application errors used across services.
var (
	ErrInvalidToken       = errors.New("INVALID_TOKEN")
	ErrInvalidCredentials = errors.New("INVALID_CREDENTIALS")
	ErrAccountInactive    = errors.New("ACCOUNT_INACTIVE")
	ErrProductNotFound    = errors.New("PRODUCT_NOT_FOUND")
	ErrDuplicateProductID = errors.New("DUPLICATE_PRODUCT_ID")
	ErrInvalidPrice       = errors.New("INVALID_PRICE")
	ErrInvalidProduct     = errors.New("INVALID_PRODUCT")
)
