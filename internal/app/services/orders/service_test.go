package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/catalog"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/order"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/promotion"
	"github.com/wirebustech/wyoiwyget/internal/app/services/carts"
	"github.com/wirebustech/wyoiwyget/internal/app/services/notifications"
	"github.com/wirebustech/wyoiwyget/internal/app/services/promotions"
	"github.com/wirebustech/wyoiwyget/internal/app/storage/memory"
)

type fixture struct {
	store    *memory.Store
	carts    *carts.Service
	orders   *Service
	products map[string]catalog.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	cartSvc := carts.New(store, store, nil)
	orderSvc := New(store, store, cartSvc, nil)

	f := &fixture{store: store, carts: cartSvc, orders: orderSvc, products: make(map[string]catalog.Product)}
	for _, seed := range []struct {
		name  string
		price int64
		stock int
	}{
		{"mug", 1250, 10},
		{"kettle", 4999, 2},
	} {
		p, err := store.CreateProduct(context.Background(), catalog.Product{
			Name:       seed.name,
			PriceCents: seed.price,
			Currency:   "usd",
			Stock:      seed.stock,
			Active:     true,
		})
		if err != nil {
			t.Fatalf("seed product: %v", err)
		}
		f.products[seed.name] = p
	}
	return f
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.carts.AddItem(ctx, "user-1", f.products["mug"].ID, 2); err != nil {
		t.Fatalf("add mug: %v", err)
	}
	if _, err := f.carts.AddItem(ctx, "user-1", f.products["kettle"].ID, 1); err != nil {
		t.Fatalf("add kettle: %v", err)
	}

	o, err := f.orders.Checkout(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if o.Status != order.StatusPending {
		t.Fatalf("status = %q, want pending", o.Status)
	}
	if o.SubtotalCents != 2*1250+4999 {
		t.Fatalf("subtotal = %d, want %d", o.SubtotalCents, 2*1250+4999)
	}
	if o.TotalCents != o.SubtotalCents {
		t.Fatalf("total = %d, want %d", o.TotalCents, o.SubtotalCents)
	}

	mug, _ := f.store.GetProduct(ctx, f.products["mug"].ID)
	if mug.Stock != 8 {
		t.Fatalf("mug stock = %d, want 8", mug.Stock)
	}

	c, err := f.carts.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(c.Items) != 0 {
		t.Fatalf("cart not cleared after checkout: %+v", c.Items)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	if _, err := f.orders.Checkout(context.Background(), "user-1", ""); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestCheckoutInsufficientStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.carts.AddItem(ctx, "user-1", f.products["kettle"].ID, 2); err != nil {
		t.Fatalf("add kettle: %v", err)
	}
	// Another shopper takes the stock before checkout.
	kettle, _ := f.store.GetProduct(ctx, f.products["kettle"].ID)
	kettle.Stock = 1
	if _, err := f.store.UpdateProduct(ctx, kettle); err != nil {
		t.Fatalf("drain stock: %v", err)
	}

	if _, err := f.orders.Checkout(ctx, "user-1", ""); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	kettle, _ = f.store.GetProduct(ctx, f.products["kettle"].ID)
	if kettle.Stock != 1 {
		t.Fatalf("stock changed on failed checkout: %d", kettle.Stock)
	}
}

func TestCheckoutWithPromoCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	promoSvc := promotions.New(f.store, nil)
	notifySvc := notifications.New(f.store, nil, nil)
	f.orders.AttachDependencies(promoSvc, notifySvc)

	if _, err := promoSvc.CreateRule(ctx, promotion.Rule{
		Code:   "SAVE10",
		Source: "function(order) { return order.subtotal_cents >= 2000 ? 1000 : 0 }",
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	if _, err := f.carts.AddItem(ctx, "user-1", f.products["mug"].ID, 2); err != nil {
		t.Fatalf("add mug: %v", err)
	}

	o, err := f.orders.Checkout(ctx, "user-1", "save10")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if o.DiscountCents != 1000 {
		t.Fatalf("discount = %d, want 1000", o.DiscountCents)
	}
	if o.TotalCents != o.SubtotalCents-1000 {
		t.Fatalf("total = %d, want %d", o.TotalCents, o.SubtotalCents-1000)
	}
	if o.PromoCode != "save10" {
		t.Fatalf("promo code %q not recorded", o.PromoCode)
	}
}

func TestCancelRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.carts.AddItem(ctx, "user-1", f.products["mug"].ID, 3); err != nil {
		t.Fatalf("add mug: %v", err)
	}
	o, err := f.orders.Checkout(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	cancelled, err := f.orders.Cancel(ctx, "user-1", o.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != order.StatusCancelled {
		t.Fatalf("status = %q, want cancelled", cancelled.Status)
	}

	mug, _ := f.store.GetProduct(ctx, f.products["mug"].ID)
	if mug.Stock != 10 {
		t.Fatalf("mug stock = %d, want 10 after cancel", mug.Stock)
	}
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.carts.AddItem(ctx, "user-1", f.products["mug"].ID, 1); err != nil {
		t.Fatalf("add mug: %v", err)
	}
	o, err := f.orders.Checkout(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	// pending -> shipped is not allowed.
	if _, err := f.orders.UpdateStatus(ctx, o.ID, order.StatusShipped); err == nil {
		t.Fatal("expected error for pending -> shipped")
	}

	for _, status := range []string{order.StatusPaid, order.StatusShipped, order.StatusDelivered} {
		if _, err := f.orders.UpdateStatus(ctx, o.ID, status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	// Delivered is terminal.
	if _, err := f.orders.UpdateStatus(ctx, o.ID, order.StatusCancelled); err == nil {
		t.Fatal("expected error for delivered -> cancelled")
	}
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.carts.AddItem(ctx, "user-1", f.products["mug"].ID, 1); err != nil {
		t.Fatalf("add mug: %v", err)
	}
	o, err := f.orders.Checkout(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if _, err := f.orders.MarkPaid(ctx, o.ID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	paid, err := f.orders.MarkPaid(ctx, o.ID)
	if err != nil {
		t.Fatalf("mark paid again: %v", err)
	}
	if paid.Status != order.StatusPaid {
		t.Fatalf("status = %q, want paid", paid.Status)
	}
}

func TestGetForUserHidesOtherUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.carts.AddItem(ctx, "user-1", f.products["mug"].ID, 1); err != nil {
		t.Fatalf("add mug: %v", err)
	}
	o, err := f.orders.Checkout(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if _, err := f.orders.GetForUser(ctx, "user-2", o.ID); err == nil {
		t.Fatal("expected not found for foreign order")
	}
}
