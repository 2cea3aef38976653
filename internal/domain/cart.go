package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartLine is one product in an owner's cart.
type CartLine struct {
	ID        uuid.UUID `json:"id"`
	Owner     Owner     `json:"-"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CartLineView is a cart line joined with its product and current stock for display and pricing.
type CartLineView struct {
	CartLine
	ProductName string          `json:"product_name"`
	SKU         string          `json:"sku"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Available   int             `json:"available"`
}

// PriceLine is the pricing engine's input for one line.
type PriceLine struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals is the result of pricing a cart.
type Totals struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	Tax          decimal.Decimal `json:"tax"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Total        decimal.Decimal `json:"total"`
}

// PriceLines projects cart views onto pricing input.
func PriceLines(lines []CartLineView) []PriceLine {
	out := make([]PriceLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, PriceLine{UnitPrice: l.UnitPrice, Quantity: l.Quantity})
	}
	return out
}

// StockRequests projects cart views onto inventory requests.
func StockRequests(lines []CartLineView) []StockRequest {
	out := make([]StockRequest, 0, len(lines))
	for _, l := range lines {
		out = append(out, StockRequest{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}
