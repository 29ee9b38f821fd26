// Package wishlists manages per-user product wishlists.
package wishlists

import (
	"context"
	"fmt"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/wishlist"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
	"github.com/wirebustech/wyoiwyget/pkg/logger"
)

// Service manages wishlist entries.
type Service struct {
	store    storage.WishlistStore
	products storage.ProductStore
	log      *logger.Logger
}

// New constructs a wishlist service.
func New(store storage.WishlistStore, products storage.ProductStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("wishlists")
	}
	return &Service{store: store, products: products, log: log}
}

// Add puts a product on the user's wishlist. Adding a product that is
// already wishlisted is a no-op.
func (s *Service) Add(ctx context.Context, userID, productID string) (wishlist.Item, error) {
	if _, err := s.products.GetProduct(ctx, productID); err != nil {
		return wishlist.Item{}, fmt.Errorf("product validation failed: %w", err)
	}
	return s.store.AddWishlistItem(ctx, wishlist.Item{UserID: userID, ProductID: productID})
}

// Remove drops a product from the user's wishlist.
func (s *Service) Remove(ctx context.Context, userID, productID string) error {
	return s.store.RemoveWishlistItem(ctx, userID, productID)
}

// List returns the user's wishlist.
func (s *Service) List(ctx context.Context, userID string) ([]wishlist.Item, error) {
	return s.store.ListWishlist(ctx, userID)
}
