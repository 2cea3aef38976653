package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultLowStockThreshold is used when a level is created without an explicit threshold.
const DefaultLowStockThreshold = 10

// InventoryLevel is the per-product stock counter.
type InventoryLevel struct {
	ProductID         uuid.UUID `json:"product_id" db:"product_id"`
	Quantity          int       `json:"quantity" db:"quantity"`
	LowStockThreshold int       `json:"low_stock_threshold" db:"low_stock_threshold"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// InStock reports whether quantity units can be taken from this level.
func (l InventoryLevel) InStock(quantity int) bool {
	return l.Quantity >= quantity
}

// IsLowStock reports whether the level is at or below its threshold.
func (l InventoryLevel) IsLowStock() bool {
	return l.Quantity <= l.LowStockThreshold
}

// StockRequest asks for quantity units of a product.
type StockRequest struct {
	ProductID uuid.UUID
	Quantity  int
}

// StockViolation describes one request that cannot be satisfied.
type StockViolation struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
	Missing   bool      `json:"missing"`
}

// Message renders the violation for API clients.
func (v StockViolation) Message() string {
	if v.Missing {
		return fmt.Sprintf("Product ID %s not found in inventory", v.ProductID)
	}
	return fmt.Sprintf("Insufficient stock for product ID: %s. Available: %d, Requested: %d",
		v.ProductID, v.Available, v.Requested)
}

// ViolationMessages flattens violations into their messages.
func ViolationMessages(violations []StockViolation) []string {
	messages := make([]string, 0, len(violations))
	for _, v := range violations {
		messages = append(messages, v.Message())
	}
	return messages
}
