// Package orders implements checkout and the order status machine.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/notification"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/order"
	"github.com/wirebustech/wyoiwyget/internal/app/metrics"
	"github.com/wirebustech/wyoiwyget/internal/app/services/carts"
	"github.com/wirebustech/wyoiwyget/internal/app/services/notifications"
	"github.com/wirebustech/wyoiwyget/internal/app/services/promotions"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
	"github.com/wirebustech/wyoiwyget/pkg/logger"
)

// ErrEmptyCart is returned when checkout runs against an empty cart.
var ErrEmptyCart = errors.New("cart is empty")

// ErrInsufficientStock is returned when a cart line exceeds available stock.
var ErrInsufficientStock = errors.New("insufficient stock")

// Service manages orders.
type Service struct {
	store      storage.OrderStore
	products   storage.ProductStore
	carts      *carts.Service
	promotions *promotions.Service
	notifier   *notifications.Service
	log        *logger.Logger
}

// New constructs an order service.
func New(store storage.OrderStore, products storage.ProductStore, cartSvc *carts.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("orders")
	}
	return &Service{store: store, products: products, carts: cartSvc, log: log}
}

// AttachDependencies wires the optional promotion and notification services.
func (s *Service) AttachDependencies(promoSvc *promotions.Service, notifier *notifications.Service) {
	s.promotions = promoSvc
	s.notifier = notifier
}

// Checkout turns the user's cart into a pending order. Prices are re-read
// from the catalog, stock is decremented, and the cart is cleared only after
// the order is stored.
func (s *Service) Checkout(ctx context.Context, userID, promoCode string) (order.Order, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return order.Order{}, err
	}
	if len(c.Items) == 0 {
		return order.Order{}, ErrEmptyCart
	}

	o := order.Order{
		UserID:   userID,
		Currency: "usd",
		Status:   order.StatusPending,
	}

	// Validate every line before touching stock so a late failure does not
	// leave earlier lines decremented.
	for _, item := range c.Items {
		p, err := s.products.GetProduct(ctx, item.ProductID)
		if err != nil {
			return order.Order{}, fmt.Errorf("product %s: %w", item.ProductID, err)
		}
		if !p.Active {
			return order.Order{}, fmt.Errorf("product %s is no longer available", p.ID)
		}
		if p.Stock < item.Quantity {
			return order.Order{}, fmt.Errorf("product %s: %w", p.ID, ErrInsufficientStock)
		}
		o.Currency = p.Currency
		o.Items = append(o.Items, order.Item{
			ProductID:      p.ID,
			Name:           p.Name,
			UnitPriceCents: p.PriceCents,
			Quantity:       item.Quantity,
		})
		o.SubtotalCents += p.PriceCents * int64(item.Quantity)
	}

	if promoCode != "" {
		if s.promotions == nil {
			return order.Order{}, fmt.Errorf("promo codes not supported")
		}
		discount, err := s.promotions.EvaluateDiscount(ctx, promoCode, o)
		if err != nil {
			return order.Order{}, err
		}
		o.DiscountCents = discount
		o.PromoCode = promoCode
	}
	o.TotalCents = o.SubtotalCents - o.DiscountCents

	for i, item := range o.Items {
		p, err := s.products.GetProduct(ctx, item.ProductID)
		if err != nil {
			s.restoreStock(ctx, o.Items[:i])
			return order.Order{}, fmt.Errorf("product %s: %w", item.ProductID, err)
		}
		p.Stock -= item.Quantity
		if p.Stock < 0 {
			s.restoreStock(ctx, o.Items[:i])
			return order.Order{}, fmt.Errorf("product %s: %w", p.ID, ErrInsufficientStock)
		}
		if _, err := s.products.UpdateProduct(ctx, p); err != nil {
			s.restoreStock(ctx, o.Items[:i])
			return order.Order{}, fmt.Errorf("reserve stock for %s: %w", p.ID, err)
		}
	}

	created, err := s.store.CreateOrder(ctx, o)
	if err != nil {
		s.restoreStock(ctx, o.Items)
		return order.Order{}, err
	}

	if _, err := s.carts.Clear(ctx, userID); err != nil {
		s.log.WithError(err).Warnf("clear cart after checkout of order %s", created.ID)
	}

	metrics.RecordOrderPlaced(created.Currency)
	s.log.Infof("order %s placed for user %s, total %d %s", created.ID, userID, created.TotalCents, created.Currency)
	return created, nil
}

// Get retrieves an order by identifier.
func (s *Service) Get(ctx context.Context, id string) (order.Order, error) {
	return s.store.GetOrder(ctx, id)
}

// GetForUser retrieves an order, hiding other users' orders as not found.
func (s *Service) GetForUser(ctx context.Context, userID, id string) (order.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	if o.UserID != userID {
		return order.Order{}, storage.ErrNotFound
	}
	return o, nil
}

// List returns the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]order.Order, error) {
	return s.store.ListOrders(ctx, userID)
}

// UpdateStatus applies a status transition. Cancelling a pending or paid
// order returns its stock to the catalog.
func (s *Service) UpdateStatus(ctx context.Context, id, to string) (order.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return order.Order{}, err
	}

	from := o.Status
	if err := o.Transition(to); err != nil {
		return order.Order{}, err
	}

	updated, err := s.store.UpdateOrder(ctx, o)
	if err != nil {
		return order.Order{}, err
	}

	if to == order.StatusCancelled {
		s.restoreStock(ctx, updated.Items)
	}

	metrics.RecordOrderTransition(from, to)
	s.notifyStatus(ctx, updated)
	s.log.Infof("order %s moved %s -> %s", id, from, to)
	return updated, nil
}

// Cancel moves an order to cancelled if its current status allows it.
func (s *Service) Cancel(ctx context.Context, userID, id string) (order.Order, error) {
	o, err := s.GetForUser(ctx, userID, id)
	if err != nil {
		return order.Order{}, err
	}
	return s.UpdateStatus(ctx, o.ID, order.StatusCancelled)
}

// MarkPaid is invoked by the payment service once a provider confirms
// payment. A repeat confirmation for an already-paid order is a no-op.
func (s *Service) MarkPaid(ctx context.Context, id string) (order.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	if o.Status == order.StatusPaid {
		return o, nil
	}
	return s.UpdateStatus(ctx, id, order.StatusPaid)
}

func (s *Service) restoreStock(ctx context.Context, items []order.Item) {
	for _, item := range items {
		p, err := s.products.GetProduct(ctx, item.ProductID)
		if err != nil {
			s.log.WithError(err).Warnf("restore stock for %s", item.ProductID)
			continue
		}
		p.Stock += item.Quantity
		if _, err := s.products.UpdateProduct(ctx, p); err != nil {
			s.log.WithError(err).Warnf("restore stock for %s", item.ProductID)
		}
	}
}

func (s *Service) notifyStatus(ctx context.Context, o order.Order) {
	if s.notifier == nil {
		return
	}
	title := fmt.Sprintf("Order %s is now %s", o.ID, o.Status)
	if _, err := s.notifier.Notify(ctx, o.UserID, notification.TypeOrderStatus, title, ""); err != nil {
		s.log.WithError(err).Warnf("notify status of order %s", o.ID)
	}
}
