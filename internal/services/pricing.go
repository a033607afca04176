package services

import (
	"bloomshop/internal/apperr"
	"bloomshop/internal/models"

	"github.com/shopspring/decimal"
)

// Shipping methods offered at checkout.
const (
	ShippingStandard = "standard"
	ShippingExpress  = "express"
	ShippingSameDay  = "same_day"
)

// PricingConfig holds the checkout charges. A zero FreeShippingThreshold disables free
// shipping.
type PricingConfig struct {
	ShippingFees          map[string]decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	TaxRate               decimal.Decimal
}

// DefaultPricingConfig returns the charges used when nothing is configured.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		ShippingFees: map[string]decimal.Decimal{
			ShippingStandard: decimal.NewFromInt(10),
			ShippingExpress:  decimal.NewFromInt(25),
			ShippingSameDay:  decimal.NewFromInt(40),
		},
		TaxRate: decimal.RequireFromString("0.04"),
	}
}

// Pricing computes order totals.
type Pricing struct {
	cfg PricingConfig
}

// NewPricing creates a new Pricing.
func NewPricing(cfg PricingConfig) *Pricing {
	return &Pricing{cfg: cfg}
}

// Quote returns the totals for items shipped with method. Tax is charged on the subtotal.
func (p *Pricing) Quote(items []models.OrderItem, method string, discount decimal.Decimal) (models.Totals, error) {
	if method == "" {
		method = ShippingStandard
	}
	fee, ok := p.cfg.ShippingFees[method]
	if !ok {
		return models.Totals{}, apperr.Validation("unknown shipping method %q", method)
	}
	if discount.IsNegative() {
		return models.Totals{}, apperr.Validation("discount must not be negative")
	}

	subtotal := models.ComputeTotals(items, decimal.Zero, decimal.Zero, decimal.Zero).Subtotal
	if p.cfg.FreeShippingThreshold.IsPositive() && subtotal.GreaterThanOrEqual(p.cfg.FreeShippingThreshold) {
		fee = decimal.Zero
	}
	tax := subtotal.Mul(p.cfg.TaxRate).Round(2)

	totals := models.ComputeTotals(items, fee, tax, discount)
	if totals.Total.IsNegative() {
		return models.Totals{}, apperr.Validation("discount exceeds order value")
	}
	return totals, nil
}
