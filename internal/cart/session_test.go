package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tillwise/pos/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func product(id, sku string, price string, available int) domain.Product {
	return domain.Product{
		ID:        id,
		Name:      "product " + id,
		SKU:       sku,
		UnitPrice: dec(price),
		Available: available,
	}
}

func TestAddItem_NewLine(t *testing.T) {
	s := NewSession("shop-1")

	notice, err := s.AddItem(product("p1", "SKU1", "500", 5))
	require.NoError(t, err)
	assert.Equal(t, NoticeNone, notice)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "p1", lines[0].ProductID)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, 5, lines[0].StockCeiling)
	assert.Equal(t, StateBuilding, s.State())

	remaining, ok := s.Remaining("p1")
	require.True(t, ok)
	assert.Equal(t, 4, remaining)
}

func TestAddItem_ExistingLineIncrements(t *testing.T) {
	s := NewSession("shop-1")
	p := product("p1", "SKU1", "500", 5)

	for i := 0; i < 3; i++ {
		notice, err := s.AddItem(p)
		require.NoError(t, err)
		assert.Equal(t, NoticeNone, notice)
	}

	lines := s.Lines()
	require.Len(t, lines, 1, "adding the same product must not create a second line")
	assert.Equal(t, 3, lines[0].Quantity)

	remaining, _ := s.Remaining("p1")
	assert.Equal(t, 2, remaining)
}

func TestAddItem_OutOfStock(t *testing.T) {
	s := NewSession("shop-1")

	notice, err := s.AddItem(product("p1", "SKU1", "500", 0))
	require.NoError(t, err)
	assert.Equal(t, NoticeOutOfStock, notice)
	assert.Empty(t, s.Lines())
	assert.Equal(t, StateEmpty, s.State())
}

func TestAddItem_StopsAtMirrorExhaustion(t *testing.T) {
	s := NewSession("shop-1")
	p := product("p1", "SKU1", "500", 2)

	for i := 0; i < 2; i++ {
		notice, err := s.AddItem(p)
		require.NoError(t, err)
		assert.Equal(t, NoticeNone, notice)
	}

	notice, err := s.AddItem(p)
	require.NoError(t, err)
	assert.Equal(t, NoticeOutOfStock, notice)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestUpdateQuantity_ClampsToCeiling(t *testing.T) {
	s := NewSession("shop-1")
	_, err := s.AddItem(product("p1", "SKU1", "500", 5))
	require.NoError(t, err)

	notice, err := s.UpdateQuantity("p1", 10)
	require.NoError(t, err)
	assert.Equal(t, NoticeStockLimit, notice)

	lines := s.Lines()
	assert.Equal(t, 5, lines[0].Quantity)

	remaining, _ := s.Remaining("p1")
	assert.Equal(t, 0, remaining)
}

func TestUpdateQuantity_ZeroRemovesLine(t *testing.T) {
	s := NewSession("shop-1")
	p := product("p1", "SKU1", "500", 5)
	_, err := s.AddItem(p)
	require.NoError(t, err)
	_, err = s.AddItem(p)
	require.NoError(t, err)

	notice, err := s.UpdateQuantity("p1", 0)
	require.NoError(t, err)
	assert.Equal(t, NoticeNone, notice)
	assert.Empty(t, s.Lines())
	assert.Equal(t, StateEmpty, s.State())

	// Same stock effect as RemoveItem: full quantity restored.
	remaining, _ := s.Remaining("p1")
	assert.Equal(t, 5, remaining)
}

func TestUpdateQuantity_AdjustsMirrorByDelta(t *testing.T) {
	s := NewSession("shop-1")
	p := product("p1", "SKU1", "500", 10)
	_, err := s.AddItem(p)
	require.NoError(t, err)

	_, err = s.UpdateQuantity("p1", 7)
	require.NoError(t, err)
	remaining, _ := s.Remaining("p1")
	assert.Equal(t, 3, remaining)

	_, err = s.UpdateQuantity("p1", 2)
	require.NoError(t, err)
	remaining, _ = s.Remaining("p1")
	assert.Equal(t, 8, remaining)
}

func TestUpdateQuantity_UnknownLine(t *testing.T) {
	s := NewSession("shop-1")
	_, err := s.UpdateQuantity("nope", 3)
	assert.ErrorIs(t, err, ErrLineNotFound)
}

func TestRemoveItem_RestoresMirror(t *testing.T) {
	s := NewSession("shop-1")
	p := product("p1", "SKU1", "500", 5)
	_, err := s.AddItem(p)
	require.NoError(t, err)
	_, err = s.UpdateQuantity("p1", 4)
	require.NoError(t, err)

	notice, err := s.RemoveItem("p1")
	require.NoError(t, err)
	assert.Equal(t, NoticeNone, notice)
	assert.Empty(t, s.Lines())

	remaining, _ := s.Remaining("p1")
	assert.Equal(t, 5, remaining)
}

func TestClear_RestoresAllLines(t *testing.T) {
	s := NewSession("shop-1")
	_, err := s.AddItem(product("p1", "SKU1", "500", 5))
	require.NoError(t, err)
	_, err = s.AddItem(product("p2", "SKU2", "300", 8))
	require.NoError(t, err)
	_, err = s.UpdateQuantity("p2", 6)
	require.NoError(t, err)

	notice, err := s.Clear()
	require.NoError(t, err)
	assert.Equal(t, NoticeCartCleared, notice)
	assert.Empty(t, s.Lines())
	assert.Equal(t, StateEmpty, s.State())

	r1, _ := s.Remaining("p1")
	r2, _ := s.Remaining("p2")
	assert.Equal(t, 5, r1)
	assert.Equal(t, 8, r2)
}

// Conservation invariant: for any sequence of cart operations that never
// reaches checkout, quantity held in lines plus mirrored remainder must
// equal the originally fetched stock, per product.
func TestStockConservation(t *testing.T) {
	s := NewSession("shop-1")
	p1 := product("p1", "SKU1", "500", 7)
	p2 := product("p2", "SKU2", "120", 4)

	for i := 0; i < 3; i++ {
		_, err := s.AddItem(p1)
		require.NoError(t, err)
	}
	_, err := s.AddItem(p2)
	require.NoError(t, err)
	_, err = s.UpdateQuantity("p1", 6)
	require.NoError(t, err)
	_, err = s.UpdateQuantity("p2", 9) // clamps to 4
	require.NoError(t, err)
	_, err = s.UpdateQuantity("p1", 2)
	require.NoError(t, err)
	_, err = s.RemoveItem("p2")
	require.NoError(t, err)

	consumed := map[string]int{}
	for _, line := range s.Lines() {
		consumed[line.ProductID] = line.Quantity
	}
	r1, _ := s.Remaining("p1")
	r2, _ := s.Remaining("p2")
	assert.Equal(t, 7, consumed["p1"]+r1)
	assert.Equal(t, 4, consumed["p2"]+r2)
}

func TestTotals_FlatDiscountScenario(t *testing.T) {
	s := NewSession("shop-1")
	p := product("pA", "SKUA", "500", 10)
	_, err := s.AddItem(p)
	require.NoError(t, err)
	_, err = s.UpdateQuantity("pA", 2)
	require.NoError(t, err)

	require.NoError(t, s.SetDiscount(
		domain.DiscountSpec{Kind: domain.DiscountFlat, Value: dec("200")},
		dec("50"),
	))

	totals := s.Totals()
	assert.True(t, totals.Subtotal.Equal(dec("1000")), "subtotal = %s", totals.Subtotal)
	assert.True(t, totals.DiscountAmount.Equal(dec("200")), "discount = %s", totals.DiscountAmount)
	assert.True(t, totals.Total.Equal(dec("850")), "total = %s", totals.Total)
}

func TestTotals_PercentDiscountScenario(t *testing.T) {
	s := NewSession("shop-1")
	p := product("pA", "SKUA", "500", 10)
	_, err := s.AddItem(p)
	require.NoError(t, err)
	_, err = s.UpdateQuantity("pA", 2)
	require.NoError(t, err)

	require.NoError(t, s.SetDiscount(
		domain.DiscountSpec{Kind: domain.DiscountPercent, Value: dec("10")},
		dec("50"),
	))

	totals := s.Totals()
	assert.True(t, totals.DiscountAmount.Equal(dec("100")), "discount = %s", totals.DiscountAmount)
	assert.True(t, totals.Total.Equal(dec("950")), "total = %s", totals.Total)
}

func TestTotals_NeverNegative(t *testing.T) {
	s := NewSession("shop-1")
	_, err := s.AddItem(product("p1", "SKU1", "100", 5))
	require.NoError(t, err)

	require.NoError(t, s.SetDiscount(
		domain.DiscountSpec{Kind: domain.DiscountFlat, Value: dec("5000")},
		decimal.Zero,
	))

	totals := s.Totals()
	assert.True(t, totals.Total.Equal(decimal.Zero), "total = %s", totals.Total)
	// The discount amount itself is reported uncapped.
	assert.True(t, totals.DiscountAmount.Equal(dec("5000")))
}

func TestSetDiscount_RejectsNegativeAndUnknownKind(t *testing.T) {
	s := NewSession("shop-1")

	err := s.SetDiscount(domain.DiscountSpec{Kind: domain.DiscountFlat, Value: dec("-1")}, decimal.Zero)
	assert.Error(t, err)

	err = s.SetDiscount(domain.DiscountSpec{Kind: "bogus", Value: decimal.Zero}, decimal.Zero)
	assert.Error(t, err)

	err = s.SetDiscount(domain.DiscountSpec{Kind: domain.DiscountPercent, Value: dec("10")}, dec("-5"))
	assert.Error(t, err)
}

func TestCheckout_Success(t *testing.T) {
	s := NewSession("shop-1")
	_, err := s.AddItem(product("p1", "SKU1", "500", 5))
	require.NoError(t, err)

	var got domain.CheckoutPayload
	sale, err := s.Checkout(context.Background(), nil, "card", func(_ context.Context, payload domain.CheckoutPayload) (domain.Sale, error) {
		got = payload
		return domain.Sale{ID: "sale-1", TotalAmount: dec("500")}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "sale-1", sale.ID)

	assert.Equal(t, "shop-1", got.ShopID)
	assert.Equal(t, "card", got.PaymentMethod)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "p1", got.Items[0].ProductID)
	assert.Equal(t, 1, got.Items[0].Quantity)

	assert.Empty(t, s.Lines())
	assert.Equal(t, StateEmpty, s.State())
	// Discount and charges reset with the cart.
	totals := s.Totals()
	assert.True(t, totals.DiscountAmount.Equal(decimal.Zero))
	assert.True(t, totals.OtherCharges.Equal(decimal.Zero))
}

func TestCheckout_FailurePreservesCartAndRestoresMirror(t *testing.T) {
	s := NewSession("shop-1")
	p := product("p1", "SKU1", "500", 5)
	_, err := s.AddItem(p)
	require.NoError(t, err)
	_, err = s.UpdateQuantity("p1", 3)
	require.NoError(t, err)

	before := s.Lines()

	_, err = s.Checkout(context.Background(), nil, "cash", func(context.Context, domain.CheckoutPayload) (domain.Sale, error) {
		return domain.Sale{}, errors.New("backend unavailable")
	})
	require.Error(t, err)

	assert.Equal(t, before, s.Lines(), "cart must survive a failed checkout untouched")
	assert.Equal(t, StateBuilding, s.State())

	remaining, _ := s.Remaining("p1")
	assert.Equal(t, 5, remaining, "optimistic decrements must be rolled back")
}

func TestCheckout_EmptyCart(t *testing.T) {
	s := NewSession("shop-1")
	_, err := s.Checkout(context.Background(), nil, "cash", func(context.Context, domain.CheckoutPayload) (domain.Sale, error) {
		t.Fatal("submit must not be called for an empty cart")
		return domain.Sale{}, nil
	})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_NoShopContext(t *testing.T) {
	s := NewSession("")
	_, err := s.AddItem(product("p1", "SKU1", "500", 5))
	require.NoError(t, err)

	_, err = s.Checkout(context.Background(), nil, "cash", func(context.Context, domain.CheckoutPayload) (domain.Sale, error) {
		t.Fatal("submit must not be called without a shop")
		return domain.Sale{}, nil
	})
	assert.ErrorIs(t, err, ErrNoShop)
}

func TestCheckout_BlocksReentry(t *testing.T) {
	s := NewSession("shop-1")
	_, err := s.AddItem(product("p1", "SKU1", "500", 5))
	require.NoError(t, err)

	sale, err := s.Checkout(context.Background(), nil, "cash", func(context.Context, domain.CheckoutPayload) (domain.Sale, error) {
		// While the submit is in flight every mutating op is refused.
		_, errAdd := s.AddItem(product("p2", "SKU2", "100", 5))
		assert.ErrorIs(t, errAdd, ErrSubmitInFlight)

		_, errCheckout := s.Checkout(context.Background(), nil, "cash", nil)
		assert.ErrorIs(t, errCheckout, ErrSubmitInFlight)

		return domain.Sale{ID: "sale-2"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "sale-2", sale.ID)
}

func TestProcessScan_MatchesSKUCaseInsensitive(t *testing.T) {
	s := NewSession("shop-1")
	products := []domain.Product{product("p1", "SKU1", "500", 5)}

	notice, err := s.ProcessScan("sku1", products)
	require.NoError(t, err)
	assert.Equal(t, NoticeNone, notice)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "p1", lines[0].ProductID)
}

func TestProcessScan_DedupWindow(t *testing.T) {
	s := NewSession("shop-1")
	now := time.Now()
	s.now = func() time.Time { return now }

	products := []domain.Product{product("p1", "SKU1", "500", 5)}

	_, err := s.ProcessScan("SKU1", products)
	require.NoError(t, err)

	// Identical code inside the window: silently ignored.
	now = now.Add(500 * time.Millisecond)
	notice, err := s.ProcessScan("SKU1", products)
	require.NoError(t, err)
	assert.Equal(t, NoticeNone, notice)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Quantity, "a repeated read must register exactly one add")

	// A continuous feed keeps refreshing the window.
	now = now.Add(1500 * time.Millisecond)
	_, err = s.ProcessScan("SKU1", products)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Lines()[0].Quantity)

	// After the window lapses the same code counts again.
	now = now.Add(3 * time.Second)
	_, err = s.ProcessScan("SKU1", products)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Lines()[0].Quantity)
}

func TestProcessScan_OutOfStock(t *testing.T) {
	s := NewSession("shop-1")
	products := []domain.Product{product("p1", "SKU1", "500", 0)}

	notice, err := s.ProcessScan("SKU1", products)
	require.NoError(t, err)
	assert.Equal(t, NoticeOutOfStock, notice)
	assert.Empty(t, s.Lines())
}

func TestProcessScan_UnknownCode(t *testing.T) {
	s := NewSession("shop-1")
	_, err := s.ProcessScan("NOPE", []domain.Product{product("p1", "SKU1", "500", 5)})
	assert.ErrorIs(t, err, ErrUnknownSKU)
}

func TestSeedStock_KeepsTouchedProducts(t *testing.T) {
	s := NewSession("shop-1")
	_, err := s.AddItem(product("p1", "SKU1", "500", 5))
	require.NoError(t, err)

	s.SeedStock([]domain.Product{
		product("p1", "SKU1", "500", 99), // touched, must keep mirrored figure
		product("p2", "SKU2", "100", 3),
	})

	r1, _ := s.Remaining("p1")
	r2, _ := s.Remaining("p2")
	assert.Equal(t, 4, r1)
	assert.Equal(t, 3, r2)
}
