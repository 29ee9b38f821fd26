// Package carts manages the single pending cart each user has.
package carts

import (
	"context"
	"fmt"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/cart"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
	"github.com/wirebustech/wyoiwyget/pkg/logger"
)

// Service manages carts. Cart items carry a price snapshot taken at add
// time; checkout re-validates against live product data.
type Service struct {
	store    storage.CartStore
	products storage.ProductStore
	log      *logger.Logger
}

// New constructs a cart service.
func New(store storage.CartStore, products storage.ProductStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("carts")
	}
	return &Service{store: store, products: products, log: log}
}

// Get returns the user's cart, empty if they have none yet.
func (s *Service) Get(ctx context.Context, userID string) (cart.Cart, error) {
	return s.store.GetCart(ctx, userID)
}

// AddItem puts quantity units of a product into the cart, merging with an
// existing line for the same product.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int) (cart.Cart, error) {
	if quantity <= 0 {
		return cart.Cart{}, fmt.Errorf("quantity must be positive")
	}

	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return cart.Cart{}, fmt.Errorf("product validation failed: %w", err)
	}
	if !p.Active {
		return cart.Cart{}, fmt.Errorf("product %s is not available", productID)
	}

	c, err := s.store.GetCart(ctx, userID)
	if err != nil {
		return cart.Cart{}, err
	}
	c.UserID = userID

	merged := false
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += quantity
			c.Items[i].UnitPriceCents = p.PriceCents
			merged = true
			break
		}
	}
	if !merged {
		c.Items = append(c.Items, cart.Item{
			ProductID:      p.ID,
			Name:           p.Name,
			UnitPriceCents: p.PriceCents,
			Quantity:       quantity,
		})
	}

	return s.store.SaveCart(ctx, c)
}

// UpdateItem sets the quantity of a cart line. Zero removes the line.
func (s *Service) UpdateItem(ctx context.Context, userID, productID string, quantity int) (cart.Cart, error) {
	if quantity < 0 {
		return cart.Cart{}, fmt.Errorf("quantity must not be negative")
	}

	c, err := s.store.GetCart(ctx, userID)
	if err != nil {
		return cart.Cart{}, err
	}

	idx := -1
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return cart.Cart{}, fmt.Errorf("product %s not in cart: %w", productID, storage.ErrNotFound)
	}

	if quantity == 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	} else {
		c.Items[idx].Quantity = quantity
	}
	c.UserID = userID

	return s.store.SaveCart(ctx, c)
}

// RemoveItem drops a product from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (cart.Cart, error) {
	return s.UpdateItem(ctx, userID, productID, 0)
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) (cart.Cart, error) {
	c, err := s.store.GetCart(ctx, userID)
	if err != nil {
		return cart.Cart{}, err
	}
	c.UserID = userID
	c.Items = nil
	return s.store.SaveCart(ctx, c)
}
