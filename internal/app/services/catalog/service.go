// Package catalog manages aggregated products and their per-platform
// listings.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/catalog"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
	"github.com/wirebustech/wyoiwyget/pkg/logger"
)

// Service manages catalog products and listings.
type Service struct {
	store storage.ProductStore
	log   *logger.Logger
}

// New constructs a catalog service.
func New(store storage.ProductStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("catalog")
	}
	return &Service{store: store, log: log}
}

// CreateProduct registers a new product.
func (s *Service) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if strings.TrimSpace(p.Name) == "" {
		return catalog.Product{}, fmt.Errorf("name is required")
	}
	if p.PriceCents < 0 {
		return catalog.Product{}, fmt.Errorf("price_cents must not be negative")
	}
	if p.Stock < 0 {
		return catalog.Product{}, fmt.Errorf("stock must not be negative")
	}
	if p.Currency == "" {
		p.Currency = "usd"
	}
	p.Active = true

	created, err := s.store.CreateProduct(ctx, p)
	if err != nil {
		return catalog.Product{}, err
	}
	s.log.Infof("product %s created", created.ID)
	return created, nil
}

// UpdateProduct overwrites mutable fields of a product.
func (s *Service) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	existing, err := s.store.GetProduct(ctx, p.ID)
	if err != nil {
		return catalog.Product{}, err
	}

	if p.Name == "" {
		p.Name = existing.Name
	}
	if p.Description == "" {
		p.Description = existing.Description
	}
	if p.Category == "" {
		p.Category = existing.Category
	}
	if p.Brand == "" {
		p.Brand = existing.Brand
	}
	if p.ImageURL == "" {
		p.ImageURL = existing.ImageURL
	}
	if p.Currency == "" {
		p.Currency = existing.Currency
	}
	if p.PriceCents < 0 || p.Stock < 0 {
		return catalog.Product{}, fmt.Errorf("price_cents and stock must not be negative")
	}
	p.CreatedAt = existing.CreatedAt

	updated, err := s.store.UpdateProduct(ctx, p)
	if err != nil {
		return catalog.Product{}, err
	}
	s.log.Infof("product %s updated", p.ID)
	return updated, nil
}

// GetProduct retrieves a product by identifier.
func (s *Service) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	return s.store.GetProduct(ctx, id)
}

// ListProducts returns products matching the filter.
func (s *Service) ListProducts(ctx context.Context, filter catalog.Filter) ([]catalog.Product, error) {
	return s.store.ListProducts(ctx, filter)
}

// DeactivateProduct hides a product from listings without deleting history.
func (s *Service) DeactivateProduct(ctx context.Context, id string) (catalog.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return catalog.Product{}, err
	}
	p.Active = false
	return s.store.UpdateProduct(ctx, p)
}

// DeleteProduct removes a product and its listings.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.log.Infof("product %s deleted", id)
	return nil
}

// AddListing attaches a platform offer to a product.
func (s *Service) AddListing(ctx context.Context, l catalog.Listing) (catalog.Listing, error) {
	if l.ProductID == "" {
		return catalog.Listing{}, fmt.Errorf("product_id is required")
	}
	if l.Platform == "" {
		return catalog.Listing{}, fmt.Errorf("platform is required")
	}
	if l.URL == "" {
		return catalog.Listing{}, fmt.Errorf("url is required")
	}
	if _, err := s.store.GetProduct(ctx, l.ProductID); err != nil {
		return catalog.Listing{}, fmt.Errorf("product validation failed: %w", err)
	}
	if l.Currency == "" {
		l.Currency = "usd"
	}
	l.Available = true
	return s.store.CreateListing(ctx, l)
}

// ListListings returns a product's platform offers.
func (s *Service) ListListings(ctx context.Context, productID string) ([]catalog.Listing, error) {
	return s.store.ListListings(ctx, productID)
}

// RemoveListing marks a listing unavailable.
func (s *Service) RemoveListing(ctx context.Context, id string) (catalog.Listing, error) {
	l, err := s.store.GetListing(ctx, id)
	if err != nil {
		return catalog.Listing{}, err
	}
	l.Available = false
	return s.store.UpdateListing(ctx, l)
}
