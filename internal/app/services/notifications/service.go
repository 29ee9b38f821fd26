// Package notifications stores per-user messages and pushes them to open
// WebSocket connections.
package notifications

import (
	"context"
	"fmt"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/notification"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
	"github.com/wirebustech/wyoiwyget/pkg/logger"
)

// Service manages notifications.
type Service struct {
	store storage.NotificationStore
	hub   *Hub
	log   *logger.Logger
}

// New constructs a notification service. The hub may be nil, in which case
// notifications are stored but not pushed.
func New(store storage.NotificationStore, hub *Hub, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("notifications")
	}
	return &Service{store: store, hub: hub, log: log}
}

// Notify stores a notification and pushes it to the user's live connections.
func (s *Service) Notify(ctx context.Context, userID, typ, title, body string) (notification.Notification, error) {
	if userID == "" {
		return notification.Notification{}, fmt.Errorf("user_id is required")
	}
	if title == "" {
		return notification.Notification{}, fmt.Errorf("title is required")
	}

	created, err := s.store.CreateNotification(ctx, notification.Notification{
		UserID: userID,
		Type:   typ,
		Title:  title,
		Body:   body,
	})
	if err != nil {
		return notification.Notification{}, err
	}

	if s.hub != nil {
		s.hub.Push(created)
	}
	return created, nil
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]notification.Notification, error) {
	return s.store.ListNotifications(ctx, userID)
}

// MarkRead flags one notification as read. Users can only touch their own.
func (s *Service) MarkRead(ctx context.Context, userID, id string) (notification.Notification, error) {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return notification.Notification{}, err
	}
	if n.UserID != userID {
		return notification.Notification{}, storage.ErrNotFound
	}
	if n.Read {
		return n, nil
	}
	n.Read = true
	return s.store.UpdateNotification(ctx, n)
}

// MarkAllRead flags every unread notification of the user as read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	list, err := s.store.ListNotifications(ctx, userID)
	if err != nil {
		return 0, err
	}

	var updated int
	for _, n := range list {
		if n.Read {
			continue
		}
		n.Read = true
		if _, err := s.store.UpdateNotification(ctx, n); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
