package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/tillwise/pos/internal/cache"
	"github.com/tillwise/pos/internal/cart"
	"github.com/tillwise/pos/internal/domain"
)

var ErrProductNotFound = errors.New("product not found in catalog")

// Upstream is the slice of the retail backend the terminal needs.
type Upstream interface {
	ListStock(ctx context.Context, shopID string) ([]domain.Product, error)
	ListCustomers(ctx context.Context, shopID string) ([]domain.Customer, error)
	CreateSale(ctx context.Context, payload domain.CheckoutPayload) (domain.Sale, error)
}

// Journal records confirmed sales locally for end-of-day reporting.
type Journal interface {
	Record(ctx context.Context, sale domain.Sale, terminalID string) error
}

// EventPublisher announces confirmed sales to downstream consumers.
type EventPublisher interface {
	SaleCompleted(ctx context.Context, sale domain.Sale, terminalID string) error
}

// CartView is the terminal-facing snapshot of a session.
type CartView struct {
	State  cart.State        `json:"state"`
	Lines  []domain.CartLine `json:"lines"`
	Totals domain.Totals     `json:"totals"`
	Notice cart.Notice       `json:"notice,omitempty"`
}

// CheckoutRequest carries the operator's checkout choices.
type CheckoutRequest struct {
	CustomerID    *string `json:"customer_id"`
	PaymentMethod string  `json:"payment_method"`
}

// TerminalService runs the POS workflow for one shop: it serves cached
// catalog and customer snapshots, owns the per-terminal cart sessions,
// and drives checkout against the upstream backend. Journal writes and
// sale events are best-effort; the server's committed sale never fails
// because of them.
type TerminalService struct {
	shopID   string
	upstream Upstream
	cache    cache.SnapshotCache
	journal  Journal
	events   EventPublisher
	sfg      singleflight.Group

	mu       sync.Mutex
	sessions map[string]*cart.Session
}

func NewTerminalService(shopID string, upstream Upstream, snapshots cache.SnapshotCache, journal Journal, events EventPublisher) *TerminalService {
	return &TerminalService{
		shopID:   shopID,
		upstream: upstream,
		cache:    snapshots,
		journal:  journal,
		events:   events,
		sessions: make(map[string]*cart.Session),
	}
}

// session returns the terminal's cart session, creating it on first use.
func (s *TerminalService) session(terminalID string) *cart.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[terminalID]
	if !ok {
		sess = cart.NewSession(s.shopID)
		s.sessions[terminalID] = sess
	}
	return sess
}

// dropSession discards a terminal's session. The next operation starts
// from an empty cart with a freshly seeded mirror.
func (s *TerminalService) dropSession(terminalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, terminalID)
}

// Catalog returns the stock listing with the terminal's mirrored
// availability overlaid, so the operator sees what is still addable.
func (s *TerminalService) Catalog(ctx context.Context, terminalID string) ([]domain.Product, error) {
	products, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}

	sess := s.session(terminalID)
	sess.SeedStock(products)

	out := make([]domain.Product, len(products))
	copy(out, products)
	for i := range out {
		if remaining, ok := sess.Remaining(out[i].ID); ok {
			out[i].Available = remaining
		}
	}
	return out, nil
}

// Customers returns the cached customer listing for sale attribution.
func (s *TerminalService) Customers(ctx context.Context) ([]domain.Customer, error) {
	v, err, _ := s.sfg.Do("customers:"+s.shopID, func() (interface{}, error) {
		customers, err := s.cache.GetCustomers(ctx, s.shopID)
		if err == nil {
			return customers, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("customers cache get error: %v", err)
		}

		customers, err = s.upstream.ListCustomers(ctx, s.shopID)
		if err != nil {
			return nil, fmt.Errorf("upstream customers: %w", err)
		}

		go func() {
			if err := s.cache.SetCustomers(context.Background(), s.shopID, customers); err != nil {
				log.Printf("customers cache set error: %v", err)
			}
		}()

		return customers, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Customer), nil
}

// Cart returns the terminal's current session snapshot.
func (s *TerminalService) Cart(terminalID string) CartView {
	return s.view(s.session(terminalID), cart.NoticeNone)
}

// AddItem adds one unit of the product to the terminal's cart.
func (s *TerminalService) AddItem(ctx context.Context, terminalID, productID string) (CartView, error) {
	products, err := s.loadCatalog(ctx)
	if err != nil {
		return CartView{}, err
	}

	var found *domain.Product
	for i := range products {
		if products[i].ID == productID {
			found = &products[i]
			break
		}
	}
	if found == nil {
		return CartView{}, ErrProductNotFound
	}

	sess := s.session(terminalID)
	sess.SeedStock(products)
	notice, err := sess.AddItem(*found)
	if err != nil {
		return CartView{}, err
	}
	return s.view(sess, notice), nil
}

// Scan resolves a barcode read against the catalog and adds the match.
func (s *TerminalService) Scan(ctx context.Context, terminalID, code string) (CartView, error) {
	products, err := s.loadCatalog(ctx)
	if err != nil {
		return CartView{}, err
	}

	sess := s.session(terminalID)
	sess.SeedStock(products)
	notice, err := sess.ProcessScan(code, products)
	if err != nil {
		return CartView{}, err
	}
	return s.view(sess, notice), nil
}

// UpdateQuantity sets a line's quantity; zero removes the line.
func (s *TerminalService) UpdateQuantity(terminalID, productID string, quantity int) (CartView, error) {
	sess := s.session(terminalID)
	notice, err := sess.UpdateQuantity(productID, quantity)
	if err != nil {
		return CartView{}, err
	}
	return s.view(sess, notice), nil
}

// RemoveItem deletes a line from the terminal's cart.
func (s *TerminalService) RemoveItem(terminalID, productID string) (CartView, error) {
	sess := s.session(terminalID)
	notice, err := sess.RemoveItem(productID)
	if err != nil {
		return CartView{}, err
	}
	return s.view(sess, notice), nil
}

// ClearCart empties the terminal's cart and restores the stock mirror.
func (s *TerminalService) ClearCart(terminalID string) (CartView, error) {
	sess := s.session(terminalID)
	notice, err := sess.Clear()
	if err != nil {
		return CartView{}, err
	}
	return s.view(sess, notice), nil
}

// SetDiscount applies a discount spec and other charges to the session.
func (s *TerminalService) SetDiscount(terminalID string, spec domain.DiscountSpec, otherCharges decimal.Decimal) (CartView, error) {
	sess := s.session(terminalID)
	if err := sess.SetDiscount(spec, otherCharges); err != nil {
		return CartView{}, err
	}
	return s.view(sess, cart.NoticeNone), nil
}

// Checkout submits the terminal's cart to the backend. On success the
// confirmed sale is journaled and published, the snapshot cache is
// invalidated, and the session is dropped. On failure the session keeps
// its cart (the state machine already rolled the mirror back) and the
// cache is invalidated so the next catalog read re-seeds from server
// truth.
func (s *TerminalService) Checkout(ctx context.Context, terminalID string, req CheckoutRequest) (domain.Sale, error) {
	sess := s.session(terminalID)

	sale, err := sess.Checkout(ctx, req.CustomerID, req.PaymentMethod, s.upstream.CreateSale)
	if err != nil {
		s.invalidateSnapshots()
		return domain.Sale{}, err
	}

	if s.journal != nil {
		if jErr := s.journal.Record(ctx, sale, terminalID); jErr != nil {
			log.Printf("journal record error for sale %s: %v", sale.ID, jErr)
		}
	}
	if s.events != nil {
		if eErr := s.events.SaleCompleted(ctx, sale, terminalID); eErr != nil {
			log.Printf("sale event publish error for sale %s: %v", sale.ID, eErr)
		}
	}

	s.invalidateSnapshots()
	s.dropSession(terminalID)
	return sale, nil
}

func (s *TerminalService) loadCatalog(ctx context.Context) ([]domain.Product, error) {
	v, err, _ := s.sfg.Do("catalog:"+s.shopID, func() (interface{}, error) {
		products, err := s.cache.GetCatalog(ctx, s.shopID)
		if err == nil {
			return products, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("catalog cache get error: %v", err)
		}

		products, err = s.upstream.ListStock(ctx, s.shopID)
		if err != nil {
			return nil, fmt.Errorf("upstream stock: %w", err)
		}

		go func() {
			if err := s.cache.SetCatalog(context.Background(), s.shopID, products); err != nil {
				log.Printf("catalog cache set error: %v", err)
			}
		}()

		return products, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Product), nil
}

func (s *TerminalService) invalidateSnapshots() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx, s.shopID); err != nil {
		log.Printf("cache invalidate error: %v", err)
	}
}

func (s *TerminalService) view(sess *cart.Session, notice cart.Notice) CartView {
	return CartView{
		State:  sess.State(),
		Lines:  sess.Lines(),
		Totals: sess.Totals(),
		Notice: notice,
	}
}
