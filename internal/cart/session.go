package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tillwise/pos/internal/domain"
)

// State is the lifecycle phase of a cart session.
type State string

const (
	StateEmpty      State = "empty"
	StateBuilding   State = "building"
	StateSubmitting State = "submitting"
)

// Notice is a non-error signal surfaced to the operator (toast/speech
// in the terminal UI). Operations that clamp or refuse input still
// succeed; the notice tells the operator what happened.
type Notice string

const (
	NoticeNone        Notice = ""
	NoticeOutOfStock  Notice = "no stock available"
	NoticeStockLimit  Notice = "cannot exceed available stock"
	NoticeCartCleared Notice = "cart cleared"
)

// SubmitFunc sends a checkout payload to the upstream sales endpoint.
type SubmitFunc func(ctx context.Context, payload domain.CheckoutPayload) (domain.Sale, error)

// Session holds the sale being built at one terminal: the ordered cart
// lines, the discount and charges, and a mirrored copy of the available
// stock for every product the session has seen. The mirror is a local,
// optimistic view of server stock; every decrement made by an add is
// matched by a restore on remove/clear/rollback, so the mirror nets to
// server truth until a checkout actually commits.
type Session struct {
	mu sync.Mutex

	shopID       string
	lines        []domain.CartLine
	discount     domain.DiscountSpec
	otherCharges decimal.Decimal
	mirror       map[string]int
	state        State

	lastScanCode string
	lastScanAt   time.Time
	now          func() time.Time
}

// NewSession creates an empty session bound to a shop.
func NewSession(shopID string) *Session {
	return &Session{
		shopID:       shopID,
		discount:     domain.DiscountSpec{Kind: domain.DiscountFlat, Value: decimal.Zero},
		otherCharges: decimal.Zero,
		mirror:       make(map[string]int),
		state:        StateEmpty,
		now:          time.Now,
	}
}

// SeedStock records the server-reported availability for products the
// session has not touched yet. Products that already have a cart line
// keep their mirrored figure so the decrement/restore bookkeeping stays
// consistent with the lines holding the stock.
func (s *Session) SeedStock(products []domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range products {
		if s.lineIndex(p.ID) >= 0 {
			continue
		}
		s.mirror[p.ID] = p.Available
	}
}

// Remaining reports the mirrored availability for a product, and whether
// the session has a figure for it at all.
func (s *Session) Remaining(productID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.mirror[productID]
	return n, ok
}

// AddItem puts one unit of the product in the cart: a new line at
// quantity 1, or +1 on the product's existing line. When the mirrored
// stock is exhausted the cart is left untouched and NoticeOutOfStock is
// returned.
func (s *Session) AddItem(p domain.Product) (Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateSubmitting {
		return NoticeNone, ErrSubmitInFlight
	}

	remaining, seeded := s.mirror[p.ID]
	if !seeded {
		remaining = p.Available
		s.mirror[p.ID] = remaining
	}
	if remaining <= 0 {
		return NoticeOutOfStock, nil
	}

	if i := s.lineIndex(p.ID); i >= 0 {
		s.lines[i].Quantity++
	} else {
		s.lines = append(s.lines, domain.CartLine{
			ProductID:    p.ID,
			Name:         p.Name,
			SKU:          p.SKU,
			Quantity:     1,
			UnitPrice:    p.UnitPrice,
			StockCeiling: remaining,
		})
	}

	s.mirror[p.ID] = remaining - 1
	s.state = StateBuilding
	return NoticeNone, nil
}

// UpdateQuantity sets a line's quantity. Zero or negative removes the
// line; anything above the stock ceiling clamps to it with a notice.
// The mirrored stock is adjusted by the delta in both directions.
func (s *Session) UpdateQuantity(productID string, quantity int) (Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateSubmitting {
		return NoticeNone, ErrSubmitInFlight
	}

	i := s.lineIndex(productID)
	if i < 0 {
		return NoticeNone, ErrLineNotFound
	}

	if quantity <= 0 {
		s.dropLine(i)
		return NoticeNone, nil
	}

	line := &s.lines[i]
	notice := NoticeNone
	if quantity > line.StockCeiling {
		quantity = line.StockCeiling
		notice = NoticeStockLimit
	}

	s.mirror[productID] += line.Quantity - quantity
	line.Quantity = quantity
	return notice, nil
}

// RemoveItem deletes the line and restores its full quantity to the
// mirrored stock.
func (s *Session) RemoveItem(productID string) (Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateSubmitting {
		return NoticeNone, ErrSubmitInFlight
	}

	i := s.lineIndex(productID)
	if i < 0 {
		return NoticeNone, ErrLineNotFound
	}

	s.dropLine(i)
	return NoticeNone, nil
}

// Clear restores the mirrored stock for every line and empties the cart.
func (s *Session) Clear() (Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateSubmitting {
		return NoticeNone, ErrSubmitInFlight
	}

	for _, line := range s.lines {
		s.mirror[line.ProductID] += line.Quantity
	}
	s.lines = nil
	s.discount = domain.DiscountSpec{Kind: domain.DiscountFlat, Value: decimal.Zero}
	s.otherCharges = decimal.Zero
	s.state = StateEmpty
	return NoticeCartCleared, nil
}

// SetDiscount replaces the discount spec and other charges applied at
// checkout. Negative values are rejected.
func (s *Session) SetDiscount(spec domain.DiscountSpec, otherCharges decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spec.Kind != domain.DiscountFlat && spec.Kind != domain.DiscountPercent {
		return fmt.Errorf("unknown discount kind %q", spec.Kind)
	}
	if spec.Value.IsNegative() {
		return fmt.Errorf("discount value must not be negative")
	}
	if otherCharges.IsNegative() {
		return fmt.Errorf("other charges must not be negative")
	}

	s.discount = spec
	s.otherCharges = otherCharges
	return nil
}

// Lines returns a copy of the cart lines in insertion order.
func (s *Session) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLines()
}

// State reports the session's lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Totals derives the amount due from the current lines, discount and
// charges. Pure: no session state changes.
func (s *Session) Totals() domain.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalsLocked()
}

func (s *Session) totalsLocked() domain.Totals {
	subtotal := decimal.Zero
	for _, line := range s.lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	discount := s.discount.Value
	if s.discount.Kind == domain.DiscountPercent {
		discount = subtotal.Mul(s.discount.Value).Div(decimal.NewFromInt(100))
	}

	total := subtotal.Sub(discount).Add(s.otherCharges)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return domain.Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		OtherCharges:   s.otherCharges,
		Total:          total,
	}
}

// Checkout builds the payload, submits it, and settles the session.
// Success empties the cart and resets discount and charges; the
// mirrored decrements stand because the server consumed the stock.
// Failure restores the mirror for every line and keeps the cart intact
// so the operator can retry. A second Checkout while one is in flight
// returns ErrSubmitInFlight.
func (s *Session) Checkout(ctx context.Context, customerID *string, paymentMethod string, submit SubmitFunc) (domain.Sale, error) {
	s.mu.Lock()
	if s.state == StateSubmitting {
		s.mu.Unlock()
		return domain.Sale{}, ErrSubmitInFlight
	}
	if len(s.lines) == 0 {
		s.mu.Unlock()
		return domain.Sale{}, ErrEmptyCart
	}
	if s.shopID == "" {
		s.mu.Unlock()
		return domain.Sale{}, ErrNoShop
	}

	if paymentMethod == "" {
		paymentMethod = "cash"
	}

	totals := s.totalsLocked()
	payload := domain.CheckoutPayload{
		ShopID:         s.shopID,
		CustomerID:     customerID,
		PaymentMethod:  paymentMethod,
		DiscountAmount: totals.DiscountAmount,
		OtherCharges:   totals.OtherCharges,
		Items:          make([]domain.PayloadItem, 0, len(s.lines)),
	}
	for _, line := range s.lines {
		payload.Items = append(payload.Items, domain.PayloadItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	s.state = StateSubmitting
	s.mu.Unlock()

	sale, err := submit(ctx, payload)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		// The sale did not happen: give every optimistic decrement back.
		for _, line := range s.lines {
			s.mirror[line.ProductID] += line.Quantity
		}
		s.state = StateBuilding
		return domain.Sale{}, fmt.Errorf("submit sale: %w", err)
	}

	s.lines = nil
	s.discount = domain.DiscountSpec{Kind: domain.DiscountFlat, Value: decimal.Zero}
	s.otherCharges = decimal.Zero
	s.state = StateEmpty
	return sale, nil
}

func (s *Session) lineIndex(productID string) int {
	for i, line := range s.lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

// dropLine removes the line at i and restores its quantity to the
// mirror. Caller holds the lock.
func (s *Session) dropLine(i int) {
	line := s.lines[i]
	s.mirror[line.ProductID] += line.Quantity
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	if len(s.lines) == 0 {
		s.state = StateEmpty
	}
}

func (s *Session) copyLines() []domain.CartLine {
	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}
