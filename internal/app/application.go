// Package app assembles the aggregator's services and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/wirebustech/wyoiwyget/internal/app/services/carts"
	catalogsvc "github.com/wirebustech/wyoiwyget/internal/app/services/catalog"
	"github.com/wirebustech/wyoiwyget/internal/app/services/matching"
	"github.com/wirebustech/wyoiwyget/internal/app/services/notifications"
	ordersvc "github.com/wirebustech/wyoiwyget/internal/app/services/orders"
	paymentsvc "github.com/wirebustech/wyoiwyget/internal/app/services/payments"
	"github.com/wirebustech/wyoiwyget/internal/app/services/promotions"
	"github.com/wirebustech/wyoiwyget/internal/app/services/users"
	"github.com/wirebustech/wyoiwyget/internal/app/services/wishlists"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
	"github.com/wirebustech/wyoiwyget/internal/app/storage/memory"
	"github.com/wirebustech/wyoiwyget/internal/app/system"
	"github.com/wirebustech/wyoiwyget/internal/config"
	"github.com/wirebustech/wyoiwyget/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users         storage.UserStore
	Products      storage.ProductStore
	Carts         storage.CartStore
	Orders        storage.OrderStore
	Wishlists     storage.WishlistStore
	Notifications storage.NotificationStore
	Payments      storage.PaymentStore
	Matches       storage.MatchStore
	Promotions    storage.PromotionStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Users         *users.Service
	Catalog       *catalogsvc.Service
	Carts         *carts.Service
	Orders        *ordersvc.Service
	Payments      *paymentsvc.Service
	Wishlists     *wishlists.Service
	Notifications *notifications.Service
	Hub           *notifications.Hub
	Matching      *matching.Service
	Promotions    *promotions.Service
}

// New builds a fully initialised application with the provided stores.
func New(cfg *config.Config, stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Products == nil {
		stores.Products = mem
	}
	if stores.Carts == nil {
		stores.Carts = mem
	}
	if stores.Orders == nil {
		stores.Orders = mem
	}
	if stores.Wishlists == nil {
		stores.Wishlists = mem
	}
	if stores.Notifications == nil {
		stores.Notifications = mem
	}
	if stores.Payments == nil {
		stores.Payments = mem
	}
	if stores.Matches == nil {
		stores.Matches = mem
	}
	if stores.Promotions == nil {
		stores.Promotions = mem
	}

	manager := system.NewManager()

	userService := users.New(stores.Users, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, log)
	catalogService := catalogsvc.New(stores.Products, log)
	cartService := carts.New(stores.Carts, stores.Products, log)
	promoService := promotions.New(stores.Promotions, log)
	wishlistService := wishlists.New(stores.Wishlists, stores.Products, log)

	hub := notifications.NewHub(log)
	notifyService := notifications.New(stores.Notifications, hub, log)

	orderService := ordersvc.New(stores.Orders, stores.Products, cartService, log)
	orderService.AttachDependencies(promoService, notifyService)

	paymentService := paymentsvc.New(stores.Payments, orderService, cfg.Stripe.WebhookSecret, log)
	paymentService.AttachNotifier(notifyService)
	if cfg.Stripe.SecretKey != "" {
		paymentService.AttachGateway(paymentsvc.NewStripeGateway(cfg.Stripe.BaseURL, cfg.Stripe.SecretKey))
	} else {
		log.Warn("STRIPE_SECRET_KEY not set; stripe payments disabled")
	}
	if cfg.PayPal.ClientID != "" {
		paymentService.AttachGateway(paymentsvc.NewPayPalGateway(cfg.PayPal.BaseURL, cfg.PayPal.ClientID, cfg.PayPal.Secret))
	} else {
		log.Warn("PAYPAL_CLIENT_ID not set; paypal payments disabled")
	}

	sources, err := config.LoadSources(cfg.Matching.SourcesPath)
	if err != nil {
		return nil, fmt.Errorf("load platform sources: %w", err)
	}
	platformClient := matching.NewPlatformClient(sources)

	var matchCache matching.Cache
	if cfg.Redis.Addr != "" {
		matchCache = matching.NewRedisCache(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	} else {
		matchCache = matching.NewMemoryCache()
	}
	matchService := matching.New(stores.Matches, platformClient, matchCache, cfg.Matching.CacheTTL, log)

	for _, name := range []string{"users", "catalog", "carts", "orders", "payments", "wishlists", "promotions", "matching"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	refresher := catalogsvc.NewRefresher(stores.Products, platformClient, cfg.Catalog.ListingRefreshSpec, log)
	reconciler := paymentsvc.NewReconciler(stores.Payments, paymentService, log)

	for _, svc := range []system.Service{hub, refresher, reconciler} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:       manager,
		log:           log,
		Users:         userService,
		Catalog:       catalogService,
		Carts:         cartService,
		Orders:        orderService,
		Payments:      paymentService,
		Wishlists:     wishlistService,
		Notifications: notifyService,
		Hub:           hub,
		Matching:      matchService,
		Promotions:    promoService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
