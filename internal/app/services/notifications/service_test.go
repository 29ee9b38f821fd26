package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/notification"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
	"github.com/wirebustech/wyoiwyget/internal/app/storage/memory"
)

func TestNotifyAndList(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil)
	ctx := context.Background()

	created, err := svc.Notify(ctx, "user-1", notification.TypeOrderStatus, "Order shipped", "on its way")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if created.Read {
		t.Fatal("new notification should be unread")
	}

	if _, err := svc.Notify(ctx, "user-2", notification.TypeSystem, "hello", ""); err != nil {
		t.Fatalf("notify other user: %v", err)
	}

	list, err := svc.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 notification for user-1, got %d", len(list))
	}
}

func TestNotifyValidation(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	if _, err := svc.Notify(context.Background(), "", notification.TypeSystem, "t", ""); err == nil {
		t.Fatal("expected error for missing user")
	}
	if _, err := svc.Notify(context.Background(), "user-1", notification.TypeSystem, "", ""); err == nil {
		t.Fatal("expected error for missing title")
	}
}

func TestMarkRead(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil)
	ctx := context.Background()

	n, err := svc.Notify(ctx, "user-1", notification.TypeSystem, "hello", "")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	updated, err := svc.MarkRead(ctx, "user-1", n.ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !updated.Read {
		t.Fatal("notification not marked read")
	}

	// Foreign notifications look like they do not exist.
	if _, err := svc.MarkRead(ctx, "user-2", n.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign notification, got %v", err)
	}
}

func TestMarkAllRead(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Notify(ctx, "user-1", notification.TypeSystem, "hello", ""); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}

	updated, err := svc.MarkAllRead(ctx, "user-1")
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if updated != 3 {
		t.Fatalf("updated = %d, want 3", updated)
	}

	again, err := svc.MarkAllRead(ctx, "user-1")
	if err != nil {
		t.Fatalf("mark all read again: %v", err)
	}
	if again != 0 {
		t.Fatalf("second pass updated %d, want 0", again)
	}
}
