package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/cart"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/catalog"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/match"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/notification"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/order"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/payment"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/promotion"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/user"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/wishlist"
)

// ErrNotFound is returned when a row does not exist. It matches
// sql.ErrNoRows so postgres scan errors pass errors.Is checks unchanged.
var ErrNotFound = sql.ErrNoRows

// ErrDuplicate is returned when a uniqueness constraint is violated.
var ErrDuplicate = errors.New("duplicate record")

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
}

// ProductStore persists catalog products and their platform listings.
type ProductStore interface {
	CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error)
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	ListProducts(ctx context.Context, filter catalog.Filter) ([]catalog.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CreateListing(ctx context.Context, l catalog.Listing) (catalog.Listing, error)
	UpdateListing(ctx context.Context, l catalog.Listing) (catalog.Listing, error)
	GetListing(ctx context.Context, id string) (catalog.Listing, error)
	ListListings(ctx context.Context, productID string) ([]catalog.Listing, error)
	ListAvailableListings(ctx context.Context) ([]catalog.Listing, error)
}

// CartStore persists one cart per user.
type CartStore interface {
	GetCart(ctx context.Context, userID string) (cart.Cart, error)
	SaveCart(ctx context.Context, c cart.Cart) (cart.Cart, error)
}

// OrderStore persists orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, o order.Order) (order.Order, error)
	UpdateOrder(ctx context.Context, o order.Order) (order.Order, error)
	GetOrder(ctx context.Context, id string) (order.Order, error)
	ListOrders(ctx context.Context, userID string) ([]order.Order, error)
}

// WishlistStore persists wishlist entries.
type WishlistStore interface {
	AddWishlistItem(ctx context.Context, item wishlist.Item) (wishlist.Item, error)
	RemoveWishlistItem(ctx context.Context, userID, productID string) error
	ListWishlist(ctx context.Context, userID string) ([]wishlist.Item, error)
}

// NotificationStore persists notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	UpdateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	GetNotification(ctx context.Context, id string) (notification.Notification, error)
	ListNotifications(ctx context.Context, userID string) ([]notification.Notification, error)
}

// PaymentStore persists payments and processed webhook events.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error)
	UpdatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error)
	GetPayment(ctx context.Context, id string) (payment.Payment, error)
	GetPaymentByIntent(ctx context.Context, provider, intentID string) (payment.Payment, error)
	ListPendingPayments(ctx context.Context) ([]payment.Payment, error)

	CreatePaymentEvent(ctx context.Context, ev payment.Event) (payment.Event, error)
	GetPaymentEvent(ctx context.Context, id string) (payment.Event, error)
}

// MatchStore persists product matching history.
type MatchStore interface {
	CreateMatchResult(ctx context.Context, res match.Result) (match.Result, error)
	ListMatchResults(ctx context.Context, userID string, limit int) ([]match.Result, error)
}

// PromotionStore persists discount rules.
type PromotionStore interface {
	CreatePromotionRule(ctx context.Context, rule promotion.Rule) (promotion.Rule, error)
	UpdatePromotionRule(ctx context.Context, rule promotion.Rule) (promotion.Rule, error)
	GetPromotionRule(ctx context.Context, id string) (promotion.Rule, error)
	GetPromotionRuleByCode(ctx context.Context, code string) (promotion.Rule, error)
	ListPromotionRules(ctx context.Context) ([]promotion.Rule, error)
}
