package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayloadItem is one line of the sales-creation request body.
type PayloadItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CheckoutPayload is the immutable snapshot sent to the upstream
// sales-creation endpoint. Built only at checkout time, never persisted.
type CheckoutPayload struct {
	ShopID         string          `json:"shop_id"`
	CustomerID     *string         `json:"customer_id"`
	PaymentMethod  string          `json:"payment_method"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	OtherCharges   decimal.Decimal `json:"other_charges"`
	Items          []PayloadItem   `json:"items"`
}

// SaleItem is one persisted line of a confirmed sale.
type SaleItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Sale is the server-confirmed sale record used to render a receipt.
// Server totals are authoritative and may differ from locally computed
// totals when server-side pricing rules apply.
type Sale struct {
	ID             string          `json:"sale_id"`
	ShopID         string          `json:"shop_id"`
	CustomerID     *string         `json:"customer_id,omitempty"`
	PaymentMethod  string          `json:"payment_method"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	OtherCharges   decimal.Decimal `json:"other_charges"`
	Items          []SaleItem      `json:"items"`
	CreatedAt      time.Time       `json:"created_at"`
}
