package repository

import "errors"

var (
	ErrProductNotFound        = errors.New("product not found")
	ErrProductSKUExists       = errors.New("product with this sku already exists")
	ErrCategoryNotFound       = errors.New("category not found")
	ErrCategoryAlreadyExists  = errors.New("category with this name already exists")
	ErrInventoryNotFound      = errors.New("inventory level not found")
	ErrNegativeQuantity       = errors.New("inventory quantity cannot be negative")
	ErrCartItemNotFound       = errors.New("cart item not found")
	ErrCartOwnerRequired      = errors.New("cart owner is required")
	ErrCartItemExists         = errors.New("cart already holds this product")
	ErrOrderNotFound          = errors.New("order not found")
	ErrDuplicatePaymentIntent = errors.New("order already exists for payment intent")
	ErrAddressNotFound        = errors.New("shipping address not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrUserAlreadyExists      = errors.New("user with this email already exists")
	ErrRefreshTokenNotFound   = errors.New("refresh token not found")
	ErrRefreshTokenRevoked    = errors.New("refresh token has been revoked")
)

// LockMode selects the row lock taken when reading inventory.
type LockMode int

const (
	LockNone LockMode = iota
	LockShare
	LockUpdate
)

func (m LockMode) clause() string {
	switch m {
	case LockShare:
		return " FOR SHARE"
	case LockUpdate:
		return " FOR UPDATE"
	default:
		return ""
	}
}

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "ASC"
	SortOrderDesc SortOrder = "DESC"
)

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
