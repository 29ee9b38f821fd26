package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/catalog"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
	"github.com/wirebustech/wyoiwyget/internal/app/storage/memory"
)

func TestCreateProduct(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, catalog.Product{Name: "Steel Kettle", PriceCents: 4999, Stock: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected generated ID")
	}
	if !p.Active {
		t.Fatal("new product should be active")
	}
	if p.Currency != "usd" {
		t.Fatalf("currency defaulted to %q, want usd", p.Currency)
	}

	if _, err := svc.CreateProduct(ctx, catalog.Product{Name: ""}); err == nil {
		t.Fatal("expected error for missing name")
	}
	if _, err := svc.CreateProduct(ctx, catalog.Product{Name: "x", PriceCents: -1}); err == nil {
		t.Fatal("expected error for negative price")
	}
}

func TestUpdateProductKeepsUnsetFields(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, catalog.Product{
		Name: "Steel Kettle", Brand: "Acme", Category: "kitchen", PriceCents: 4999, Stock: 3,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.UpdateProduct(ctx, catalog.Product{
		ID: p.ID, PriceCents: 4500, Stock: 5, Active: true,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Steel Kettle" || updated.Brand != "Acme" || updated.Category != "kitchen" {
		t.Fatalf("unset fields lost: %+v", updated)
	}
	if updated.PriceCents != 4500 || updated.Stock != 5 {
		t.Fatalf("price/stock not applied: %+v", updated)
	}
}

func TestListProductsFilter(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	if _, err := svc.CreateProduct(ctx, catalog.Product{Name: "Steel Kettle", Category: "kitchen", PriceCents: 4999}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateProduct(ctx, catalog.Product{Name: "Wool Socks", Category: "apparel", PriceCents: 1299}); err != nil {
		t.Fatalf("create: %v", err)
	}
	deactivated, err := svc.CreateProduct(ctx, catalog.Product{Name: "Old Kettle", Category: "kitchen", PriceCents: 999})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.DeactivateProduct(ctx, deactivated.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	list, err := svc.ListProducts(ctx, catalog.Filter{Query: "kettle", OnlyActive: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Steel Kettle" {
		t.Fatalf("filter result %+v", list)
	}

	list, err = svc.ListProducts(ctx, catalog.Filter{Category: "kitchen"})
	if err != nil {
		t.Fatalf("list by category: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("category filter returned %d products, want 2", len(list))
	}
}

func TestListingLifecycle(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, catalog.Product{Name: "Steel Kettle", PriceCents: 4999})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	l, err := svc.AddListing(ctx, catalog.Listing{
		ProductID: p.ID, Platform: "shopzone", URL: "https://shopzone.test/p/1", PriceCents: 4750,
	})
	if err != nil {
		t.Fatalf("add listing: %v", err)
	}
	if !l.Available {
		t.Fatal("new listing should be available")
	}

	if _, err := svc.AddListing(ctx, catalog.Listing{ProductID: "missing", Platform: "x", URL: "https://x"}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown product, got %v", err)
	}

	removed, err := svc.RemoveListing(ctx, l.ID)
	if err != nil {
		t.Fatalf("remove listing: %v", err)
	}
	if removed.Available {
		t.Fatal("removed listing should be unavailable")
	}

	listings, err := svc.ListListings(ctx, p.ID)
	if err != nil {
		t.Fatalf("list listings: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected the listing to remain on record, got %d", len(listings))
	}
}
