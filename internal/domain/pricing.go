package domain

import "github.com/feastline/api/internal/money"

// PriceBreakdown captures the aggregated monetary results of pricing a cart.
// VATRateBps is pinned alongside the amount so stored breakdowns remain
// auditable after the runtime configuration changes.
type PriceBreakdown struct {
	Currency    string
	Subtotal    money.Amount
	VATRateBps  int64
	VAT         money.Amount
	DeliveryFee money.Amount
	Total       money.Amount
	Lines       []LinePricing
}

// LinePricing stores the per-line pricing outputs after resolving extras.
type LinePricing struct {
	CatalogItemID string
	UnitPrice     money.Amount
	ExtrasPrice   money.Amount
	Quantity      int
	LineTotal     money.Amount
	Extras        []ExtraPricing
}

// ExtraPricing records a single resolved extra and the price that was applied.
type ExtraPricing struct {
	GroupID string
	ItemID  string
	Name    string
	Price   money.Amount
}

// PricingConfig holds the tenant-level pricing knobs applied during checkout.
type PricingConfig struct {
	// VATEnabled toggles VAT computation entirely.
	VATEnabled bool
	// VATRateBps is the value-added tax rate in basis points (750 = 7.5%).
	VATRateBps int64
	// DeliveryFees maps each delivery method to its flat fee.
	DeliveryFees map[DeliveryMethod]money.Amount
}

// DeliveryFee returns the configured fee for the method, or zero if unset.
func (c PricingConfig) DeliveryFee(m DeliveryMethod) money.Amount {
	return c.DeliveryFees[m]
}
