package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tillwise/pos/internal/cart"
	"github.com/tillwise/pos/internal/client"
	"github.com/tillwise/pos/internal/domain"
	"github.com/tillwise/pos/internal/service"
)

// TerminalAPI is the slice of the terminal service the handlers use.
type TerminalAPI interface {
	Catalog(ctx context.Context, terminalID string) ([]domain.Product, error)
	Customers(ctx context.Context) ([]domain.Customer, error)
	Cart(terminalID string) service.CartView
	AddItem(ctx context.Context, terminalID, productID string) (service.CartView, error)
	Scan(ctx context.Context, terminalID, code string) (service.CartView, error)
	UpdateQuantity(terminalID, productID string, quantity int) (service.CartView, error)
	RemoveItem(terminalID, productID string) (service.CartView, error)
	ClearCart(terminalID string) (service.CartView, error)
	SetDiscount(terminalID string, spec domain.DiscountSpec, otherCharges decimal.Decimal) (service.CartView, error)
	Checkout(ctx context.Context, terminalID string, req service.CheckoutRequest) (domain.Sale, error)
}

type TerminalHandler struct {
	svc TerminalAPI
}

func NewTerminalHandler(svc TerminalAPI) *TerminalHandler {
	return &TerminalHandler{svc: svc}
}

// Routes mounts the terminal API on a chi router.
func (h *TerminalHandler) Routes(r chi.Router) {
	r.Get("/catalog", h.GetCatalog)
	r.Get("/customers", h.GetCustomers)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Post("/items", h.AddItem)
		r.Put("/items/{product_id}", h.UpdateQuantity)
		r.Delete("/items/{product_id}", h.RemoveItem)
		r.Post("/clear", h.ClearCart)
		r.Post("/scan", h.Scan)
		r.Put("/discount", h.SetDiscount)
	})

	r.Post("/checkout", h.Checkout)
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type ScanRequestDTO struct {
	Code string `json:"code"`
}

type DiscountRequestDTO struct {
	Kind         string          `json:"kind"`
	Value        decimal.Decimal `json:"value"`
	OtherCharges decimal.Decimal `json:"other_charges"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *TerminalHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Catalog(r.Context(), terminalIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *TerminalHandler) GetCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.svc.Customers(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, customers)
}

func (h *TerminalHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.Cart(terminalIDFromContext(r.Context())))
}

func (h *TerminalHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	view, err := h.svc.AddItem(r.Context(), terminalIDFromContext(r.Context()), req.ProductID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (h *TerminalHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	view, err := h.svc.UpdateQuantity(terminalIDFromContext(r.Context()), productID, req.Quantity)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *TerminalHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	view, err := h.svc.RemoveItem(terminalIDFromContext(r.Context()), productID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *TerminalHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.ClearCart(terminalIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *TerminalHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	view, err := h.svc.Scan(r.Context(), terminalIDFromContext(r.Context()), req.Code)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *TerminalHandler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	var req DiscountRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	spec := domain.DiscountSpec{Kind: domain.DiscountKind(req.Kind), Value: req.Value}
	view, err := h.svc.SetDiscount(terminalIDFromContext(r.Context()), spec, req.OtherCharges)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *TerminalHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	sale, err := h.svc.Checkout(r.Context(), terminalIDFromContext(r.Context()), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sale)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError maps cart, service and upstream errors onto HTTP
// statuses and the JSON error envelope.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, cart.ErrUnknownSKU):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, cart.ErrEmptyCart), errors.Is(err, cart.ErrNoShop):
		respondError(w, http.StatusBadRequest, "invalid_cart", err.Error())
	case errors.Is(err, cart.ErrSubmitInFlight):
		respondError(w, http.StatusConflict, "checkout_in_progress", err.Error())
	default:
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			respondError(w, http.StatusBadGateway, "upstream_error", apiErr.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
