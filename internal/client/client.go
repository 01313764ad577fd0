// Package client talks to the upstream retail backend: stock and
// customer listings in, sale creation out. The backend's JSON is
// loosely typed, so every response passes through a normalization step
// that produces the typed domain values and defaults or drops malformed
// fields instead of letting them through.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tillwise/pos/internal/domain"
)

// Client is the HTTP client for the retail backend's REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// APIError is a non-success response from the backend. Reason carries
// the server-reported message when the body had one.
type APIError struct {
	Status int
	Reason string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

// ListStock fetches the shop's stock listing and normalizes it into
// products. Entries without a product id are dropped; malformed
// quantities and prices default to zero.
func (c *Client) ListStock(ctx context.Context, shopID string) ([]domain.Product, error) {
	var envelope struct {
		Data []stockItemDTO `json:"data"`
	}
	if err := c.getJSON(ctx, "/stocks?shop_id="+shopID, &envelope); err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}

	products := make([]domain.Product, 0, len(envelope.Data))
	for _, dto := range envelope.Data {
		p, ok := dto.toDomain()
		if !ok {
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

// ListCustomers fetches the shop's customer listing for sale attribution.
func (c *Client) ListCustomers(ctx context.Context, shopID string) ([]domain.Customer, error) {
	var envelope struct {
		Data []customerDTO `json:"data"`
	}
	if err := c.getJSON(ctx, "/customers?shop_id="+shopID, &envelope); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}

	customers := make([]domain.Customer, 0, len(envelope.Data))
	for _, dto := range envelope.Data {
		if dto.ID == "" {
			continue
		}
		customers = append(customers, domain.Customer{
			ID:    dto.ID,
			Name:  dto.Name,
			Phone: dto.Phone,
		})
	}
	return customers, nil
}

// CreateSale submits the checkout payload to the sales-creation
// endpoint and returns the server's confirmed sale record.
func (c *Client) CreateSale(ctx context.Context, payload domain.CheckoutPayload) (domain.Sale, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sales", bytes.NewReader(body))
	if err != nil {
		return domain.Sale{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("create sale: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Sale{}, &APIError{Status: resp.StatusCode, Reason: readReason(resp.Body)}
	}

	var envelope struct {
		Data saleDTO `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return domain.Sale{}, fmt.Errorf("decode sale: %w", err)
	}

	sale, err := envelope.Data.toDomain()
	if err != nil {
		return domain.Sale{}, fmt.Errorf("normalize sale: %w", err)
	}
	return sale, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Reason: readReason(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readReason pulls a human-readable message out of an error body.
func readReason(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}

// flexDecimal accepts a JSON number or a numeric string; anything else
// defaults to zero rather than failing the whole listing.
type flexDecimal struct {
	decimal.Decimal
}

func (f *flexDecimal) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		f.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		f.Decimal = decimal.Zero
		return nil
	}
	f.Decimal = d
	return nil
}

// flexInt is flexDecimal truncated to an integer.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var d flexDecimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*f = flexInt(d.IntPart())
	return nil
}

type stockItemDTO struct {
	ProductID string      `json:"product_id"`
	Name      string      `json:"product_name"`
	SKU       string      `json:"sku"`
	Quantity  flexInt     `json:"quantity"`
	UnitPrice flexDecimal `json:"unit_price"`
}

func (d stockItemDTO) toDomain() (domain.Product, bool) {
	if d.ProductID == "" {
		return domain.Product{}, false
	}

	available := int(d.Quantity)
	if available < 0 {
		available = 0
	}
	price := d.UnitPrice.Decimal
	if price.IsNegative() {
		price = decimal.Zero
	}

	return domain.Product{
		ID:        d.ProductID,
		Name:      d.Name,
		SKU:       d.SKU,
		UnitPrice: price,
		Available: available,
	}, true
}

type customerDTO struct {
	ID    string `json:"customer_id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type saleItemDTO struct {
	ProductID string      `json:"product_id"`
	Quantity  flexInt     `json:"quantity"`
	UnitPrice flexDecimal `json:"unit_price"`
}

type saleDTO struct {
	ID             string        `json:"sale_id"`
	ShopID         string        `json:"shop_id"`
	CustomerID     *string       `json:"customer_id"`
	PaymentMethod  string        `json:"payment_method"`
	TotalAmount    flexDecimal   `json:"total_amount"`
	DiscountAmount flexDecimal   `json:"discount_amount"`
	OtherCharges   flexDecimal   `json:"other_charges"`
	Items          []saleItemDTO `json:"items"`
	CreatedAt      time.Time     `json:"created_at"`
}

func (d saleDTO) toDomain() (domain.Sale, error) {
	if d.ID == "" {
		return domain.Sale{}, fmt.Errorf("sale record has no id")
	}

	items := make([]domain.SaleItem, 0, len(d.Items))
	for _, item := range d.Items {
		if item.ProductID == "" {
			continue
		}
		items = append(items, domain.SaleItem{
			ProductID: item.ProductID,
			Quantity:  int(item.Quantity),
			UnitPrice: item.UnitPrice.Decimal,
		})
	}

	return domain.Sale{
		ID:             d.ID,
		ShopID:         d.ShopID,
		CustomerID:     d.CustomerID,
		PaymentMethod:  d.PaymentMethod,
		TotalAmount:    d.TotalAmount.Decimal,
		DiscountAmount: d.DiscountAmount.Decimal,
		OtherCharges:   d.OtherCharges.Decimal,
		Items:          items,
		CreatedAt:      d.CreatedAt,
	}, nil
}
