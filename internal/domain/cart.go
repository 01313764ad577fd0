package domain

import "github.com/shopspring/decimal"

// CartLine is one product entry in the sale being built. Quantity stays
// between 1 and StockCeiling for as long as the line exists; a line that
// would drop to 0 is removed instead.
type CartLine struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku,omitempty"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	StockCeiling int             `json:"stock_ceiling"`
}

type DiscountKind string

const (
	DiscountFlat    DiscountKind = "flat"
	DiscountPercent DiscountKind = "percent"
)

// DiscountSpec is applied to the cart subtotal. Value is a currency
// amount for flat discounts and a percentage for percent discounts.
type DiscountSpec struct {
	Kind  DiscountKind    `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// Totals is the derived amount-due breakdown for a cart.
// Total is floored at zero even when the discount exceeds the subtotal.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	OtherCharges   decimal.Decimal `json:"other_charges"`
	Total          decimal.Decimal `json:"total"`
}
