package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/cart"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/catalog"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/match"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/notification"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/order"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/payment"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/promotion"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/user"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/wishlist"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu             sync.RWMutex
	users          map[string]user.User
	usersByEmail   map[string]string
	products       map[string]catalog.Product
	listings       map[string]catalog.Listing
	carts          map[string]cart.Cart // keyed by user ID
	orders         map[string]order.Order
	wishlists      map[string][]wishlist.Item
	notifications  map[string]notification.Notification
	payments       map[string]payment.Payment
	paymentEvents  map[string]payment.Event
	matchResults   map[string][]match.Result
	promotions     map[string]promotion.Rule
	promosByCode   map[string]string
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.ProductStore = (*Store)(nil)
var _ storage.CartStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)
var _ storage.WishlistStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.PaymentStore = (*Store)(nil)
var _ storage.MatchStore = (*Store)(nil)
var _ storage.PromotionStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:         make(map[string]user.User),
		usersByEmail:  make(map[string]string),
		products:      make(map[string]catalog.Product),
		listings:      make(map[string]catalog.Listing),
		carts:         make(map[string]cart.Cart),
		orders:        make(map[string]order.Order),
		wishlists:     make(map[string][]wishlist.Item),
		notifications: make(map[string]notification.Notification),
		payments:      make(map[string]payment.Payment),
		paymentEvents: make(map[string]payment.Event),
		matchResults:  make(map[string][]match.Result),
		promotions:    make(map[string]promotion.Rule),
		promosByCode:  make(map[string]string),
	}
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(u.Email))
	if _, exists := s.usersByEmail[email]; exists {
		return user.User{}, fmt.Errorf("user %s: %w", email, storage.ErrDuplicate)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.Email = email
	u.CreatedAt = now
	u.UpdatedAt = now

	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", u.ID, storage.ErrNotFound)
	}
	u.Email = existing.Email
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", email, storage.ErrNotFound)
	}
	return s.users[id], nil
}

// ProductStore implementation -------------------------------------------------

func (s *Store) CreateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[p.ID]
	if !ok {
		return catalog.Product{}, fmt.Errorf("product %s: %w", p.ID, storage.ErrNotFound)
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, fmt.Errorf("product %s: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context, filter catalog.Filter) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	var result []catalog.Product
	for _, p := range s.products {
		if filter.OnlyActive && !p.Active {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(p.Category, filter.Category) {
			continue
		}
		if filter.MinPriceCents > 0 && p.PriceCents < filter.MinPriceCents {
			continue
		}
		if filter.MaxPriceCents > 0 && p.PriceCents > filter.MaxPriceCents {
			continue
		}
		if query != "" {
			haystack := strings.ToLower(p.Name + " " + p.Brand + " " + p.Description)
			if !strings.Contains(haystack, query) {
				continue
			}
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return fmt.Errorf("product %s: %w", id, storage.ErrNotFound)
	}
	delete(s.products, id)
	for lid, l := range s.listings {
		if l.ProductID == id {
			delete(s.listings, lid)
		}
	}
	return nil
}

func (s *Store) CreateListing(_ context.Context, l catalog.Listing) (catalog.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[l.ProductID]; !ok {
		return catalog.Listing{}, fmt.Errorf("product %s: %w", l.ProductID, storage.ErrNotFound)
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	s.listings[l.ID] = l
	return l, nil
}

func (s *Store) UpdateListing(_ context.Context, l catalog.Listing) (catalog.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.listings[l.ID]
	if !ok {
		return catalog.Listing{}, fmt.Errorf("listing %s: %w", l.ID, storage.ErrNotFound)
	}
	l.ProductID = existing.ProductID
	l.CreatedAt = existing.CreatedAt
	l.UpdatedAt = time.Now().UTC()
	s.listings[l.ID] = l
	return l, nil
}

func (s *Store) GetListing(_ context.Context, id string) (catalog.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return catalog.Listing{}, fmt.Errorf("listing %s: %w", id, storage.ErrNotFound)
	}
	return l, nil
}

func (s *Store) ListListings(_ context.Context, productID string) ([]catalog.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []catalog.Listing
	for _, l := range s.listings {
		if l.ProductID == productID {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) ListAvailableListings(_ context.Context) ([]catalog.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []catalog.Listing
	for _, l := range s.listings {
		if l.Available {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// CartStore implementation ----------------------------------------------------

func (s *Store) GetCart(_ context.Context, userID string) (cart.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.carts[userID]
	if !ok {
		return cart.Cart{UserID: userID}, nil
	}
	return cloneCart(c), nil
}

func (s *Store) SaveCart(_ context.Context, c cart.Cart) (cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.UserID == "" {
		return cart.Cart{}, fmt.Errorf("cart user_id is required")
	}
	now := time.Now().UTC()
	if existing, ok := s.carts[c.UserID]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	} else {
		c.ID = uuid.NewString()
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.carts[c.UserID] = cloneCart(c)
	return c, nil
}

// OrderStore implementation ---------------------------------------------------

func (s *Store) CreateOrder(_ context.Context, o order.Order) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	s.orders[o.ID] = cloneOrder(o)
	return o, nil
}

func (s *Store) UpdateOrder(_ context.Context, o order.Order) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.orders[o.ID]
	if !ok {
		return order.Order{}, fmt.Errorf("order %s: %w", o.ID, storage.ErrNotFound)
	}
	o.UserID = existing.UserID
	o.CreatedAt = existing.CreatedAt
	o.UpdatedAt = time.Now().UTC()
	s.orders[o.ID] = cloneOrder(o)
	return o, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, fmt.Errorf("order %s: %w", id, storage.ErrNotFound)
	}
	return cloneOrder(o), nil
}

func (s *Store) ListOrders(_ context.Context, userID string) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []order.Order
	for _, o := range s.orders {
		if userID == "" || o.UserID == userID {
			result = append(result, cloneOrder(o))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// WishlistStore implementation ------------------------------------------------

func (s *Store) AddWishlistItem(_ context.Context, item wishlist.Item) (wishlist.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.wishlists[item.UserID] {
		if existing.ProductID == item.ProductID {
			return existing, nil
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt = time.Now().UTC()
	s.wishlists[item.UserID] = append(s.wishlists[item.UserID], item)
	return item, nil
}

func (s *Store) RemoveWishlistItem(_ context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.wishlists[userID]
	for i, item := range items {
		if item.ProductID == productID {
			s.wishlists[userID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("wishlist item %s: %w", productID, storage.ErrNotFound)
}

func (s *Store) ListWishlist(_ context.Context, userID string) ([]wishlist.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.wishlists[userID]
	result := make([]wishlist.Item, len(items))
	copy(result, items)
	return result, nil
}

// NotificationStore implementation --------------------------------------------

func (s *Store) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now().UTC()
	s.notifications[n.ID] = n
	return n, nil
}

func (s *Store) UpdateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.notifications[n.ID]
	if !ok {
		return notification.Notification{}, fmt.Errorf("notification %s: %w", n.ID, storage.ErrNotFound)
	}
	n.UserID = existing.UserID
	n.CreatedAt = existing.CreatedAt
	s.notifications[n.ID] = n
	return n, nil
}

func (s *Store) GetNotification(_ context.Context, id string) (notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return notification.Notification{}, fmt.Errorf("notification %s: %w", id, storage.ErrNotFound)
	}
	return n, nil
}

func (s *Store) ListNotifications(_ context.Context, userID string) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []notification.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// PaymentStore implementation -------------------------------------------------

func (s *Store) CreatePayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.payments[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.payments[p.ID]
	if !ok {
		return payment.Payment{}, fmt.Errorf("payment %s: %w", p.ID, storage.ErrNotFound)
	}
	p.OrderID = existing.OrderID
	p.UserID = existing.UserID
	p.Provider = existing.Provider
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.payments[p.ID] = p
	return p, nil
}

func (s *Store) GetPayment(_ context.Context, id string) (payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return payment.Payment{}, fmt.Errorf("payment %s: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) GetPaymentByIntent(_ context.Context, provider, intentID string) (payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payments {
		if p.Provider == provider && p.IntentID == intentID {
			return p, nil
		}
	}
	return payment.Payment{}, fmt.Errorf("payment intent %s/%s: %w", provider, intentID, storage.ErrNotFound)
}

func (s *Store) ListPendingPayments(_ context.Context) ([]payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []payment.Payment
	for _, p := range s.payments {
		if p.Status == payment.StatusPending {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) CreatePaymentEvent(_ context.Context, ev payment.Event) (payment.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		return payment.Event{}, fmt.Errorf("payment event id is required")
	}
	if _, exists := s.paymentEvents[ev.ID]; exists {
		return payment.Event{}, fmt.Errorf("payment event %s: %w", ev.ID, storage.ErrDuplicate)
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	s.paymentEvents[ev.ID] = ev
	return ev, nil
}

func (s *Store) GetPaymentEvent(_ context.Context, id string) (payment.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.paymentEvents[id]
	if !ok {
		return payment.Event{}, fmt.Errorf("payment event %s: %w", id, storage.ErrNotFound)
	}
	return ev, nil
}

// MatchStore implementation ---------------------------------------------------

func (s *Store) CreateMatchResult(_ context.Context, res match.Result) (match.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	res.CreatedAt = time.Now().UTC()
	s.matchResults[res.UserID] = append(s.matchResults[res.UserID], res)
	return res, nil
}

func (s *Store) ListMatchResults(_ context.Context, userID string, limit int) ([]match.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := s.matchResults[userID]
	out := make([]match.Result, len(results))
	copy(out, results)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PromotionStore implementation -----------------------------------------------

func (s *Store) CreatePromotionRule(_ context.Context, rule promotion.Rule) (promotion.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := strings.ToUpper(strings.TrimSpace(rule.Code))
	if _, exists := s.promosByCode[code]; exists {
		return promotion.Rule{}, fmt.Errorf("promotion %s: %w", code, storage.ErrDuplicate)
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rule.Code = code
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.promotions[rule.ID] = rule
	s.promosByCode[code] = rule.ID
	return rule, nil
}

func (s *Store) UpdatePromotionRule(_ context.Context, rule promotion.Rule) (promotion.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.promotions[rule.ID]
	if !ok {
		return promotion.Rule{}, fmt.Errorf("promotion %s: %w", rule.ID, storage.ErrNotFound)
	}
	rule.Code = existing.Code
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()
	s.promotions[rule.ID] = rule
	return rule, nil
}

func (s *Store) GetPromotionRule(_ context.Context, id string) (promotion.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.promotions[id]
	if !ok {
		return promotion.Rule{}, fmt.Errorf("promotion %s: %w", id, storage.ErrNotFound)
	}
	return rule, nil
}

func (s *Store) GetPromotionRuleByCode(_ context.Context, code string) (promotion.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.promosByCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return promotion.Rule{}, fmt.Errorf("promotion %s: %w", code, storage.ErrNotFound)
	}
	return s.promotions[id], nil
}

func (s *Store) ListPromotionRules(_ context.Context) ([]promotion.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []promotion.Rule
	for _, rule := range s.promotions {
		result = append(result, rule)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// clone helpers ---------------------------------------------------------------

func cloneCart(c cart.Cart) cart.Cart {
	items := make([]cart.Item, len(c.Items))
	copy(items, c.Items)
	c.Items = items
	return c
}

func cloneOrder(o order.Order) order.Order {
	items := make([]order.Item, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}
