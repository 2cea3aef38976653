package service

import (
	"storefront/internal/domain"

	"github.com/shopspring/decimal"
)

// PricingEngine computes cart totals. It holds no state beyond its configuration, so
// identical lines always price identically.
type PricingEngine struct {
	taxRate      decimal.Decimal
	shippingCost decimal.Decimal
}

func NewPricingEngine(taxRate, shippingCost decimal.Decimal) *PricingEngine {
	return &PricingEngine{taxRate: taxRate, shippingCost: shippingCost}
}

// CalculateTotals prices the lines. Shipping is flat and only waived for an empty cart.
func (p *PricingEngine) CalculateTotals(lines []domain.PriceLine) domain.Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	subtotal = domain.RoundMoney(subtotal)

	tax := domain.RoundMoney(subtotal.Mul(p.taxRate))

	shipping := decimal.Zero
	if len(lines) > 0 {
		shipping = domain.RoundMoney(p.shippingCost)
	}

	return domain.Totals{
		Subtotal:     subtotal,
		Tax:          tax,
		ShippingCost: shipping,
		Total:        domain.RoundMoney(subtotal.Add(tax).Add(shipping)),
	}
}
