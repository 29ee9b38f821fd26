package wishlists

import (
	"context"
	"errors"
	"testing"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/catalog"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
	"github.com/wirebustech/wyoiwyget/internal/app/storage/memory"
)

func TestAddRemoveList(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	p, err := store.CreateProduct(ctx, catalog.Product{Name: "Steel Kettle", PriceCents: 4999, Active: true})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}

	if _, err := svc.Add(ctx, "user-1", p.ID); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Adding the same product twice is a no-op.
	if _, err := svc.Add(ctx, "user-1", p.ID); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	items, err := svc.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("wishlist size %d, want 1", len(items))
	}

	if err := svc.Remove(ctx, "user-1", p.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	items, err = svc.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("list after remove: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("wishlist size %d after remove, want 0", len(items))
	}
}

func TestAddRejectsUnknownProduct(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)

	if _, err := svc.Add(context.Background(), "user-1", "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
