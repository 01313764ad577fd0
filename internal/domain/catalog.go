package domain

import "github.com/shopspring/decimal"

// Product is the normalized shape of one entry in the upstream stock
// listing: what the shop currently sells and how many units are left.
type Product struct {
	ID        string          `json:"product_id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Available int             `json:"available"`
}

// Customer is an optional attribution target for a sale.
type Customer struct {
	ID    string `json:"customer_id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}
