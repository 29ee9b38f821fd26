// Package httpapi exposes the aggregator's REST and WebSocket API.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/mem"

	app "github.com/wirebustech/wyoiwyget/internal/app"
	"github.com/wirebustech/wyoiwyget/internal/app/metrics"
	"github.com/wirebustech/wyoiwyget/internal/app/services/orders"
	"github.com/wirebustech/wyoiwyget/internal/app/services/payments"
	"github.com/wirebustech/wyoiwyget/internal/app/services/promotions"
	"github.com/wirebustech/wyoiwyget/internal/app/services/users"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
	"github.com/wirebustech/wyoiwyget/internal/config"
	"github.com/wirebustech/wyoiwyget/pkg/logger"
)

// maxBodyBytes caps request bodies; webhook payloads stay well below this.
const maxBodyBytes = 1 << 20

var startTime = time.Now()

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
	log *logger.Logger
}

// NewHandler returns the fully wired API handler: router, auth, rate
// limiting, CORS, security headers, logging and metrics.
func NewHandler(application *app.Application, cfg *config.Config, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	r := mux.NewRouter()

	// Public surface.
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/payments/webhooks/stripe", h.stripeWebhook).Methods(http.MethodPost)
	r.HandleFunc("/payments/webhooks/paypal", h.paypalWebhook).Methods(http.MethodPost)
	r.HandleFunc("/products", h.listProducts).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", h.getProduct).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}/listings", h.listListings).Methods(http.MethodGet)

	// Profile.
	r.HandleFunc("/users/me", h.me).Methods(http.MethodGet)
	r.HandleFunc("/users/me", h.updateProfile).Methods(http.MethodPatch)
	r.HandleFunc("/users/me/password", h.changePassword).Methods(http.MethodPost)

	// Catalog administration.
	r.HandleFunc("/products", requireAdmin(h.createProduct)).Methods(http.MethodPost)
	r.HandleFunc("/products/{id}", requireAdmin(h.updateProduct)).Methods(http.MethodPatch)
	r.HandleFunc("/products/{id}", requireAdmin(h.deleteProduct)).Methods(http.MethodDelete)
	r.HandleFunc("/products/{id}/listings", requireAdmin(h.addListing)).Methods(http.MethodPost)
	r.HandleFunc("/listings/{id}", requireAdmin(h.removeListing)).Methods(http.MethodDelete)

	// Cart.
	r.HandleFunc("/cart", h.getCart).Methods(http.MethodGet)
	r.HandleFunc("/cart", h.clearCart).Methods(http.MethodDelete)
	r.HandleFunc("/cart/items", h.addCartItem).Methods(http.MethodPost)
	r.HandleFunc("/cart/items/{productID}", h.updateCartItem).Methods(http.MethodPatch)
	r.HandleFunc("/cart/items/{productID}", h.removeCartItem).Methods(http.MethodDelete)

	// Orders.
	r.HandleFunc("/orders", h.checkout).Methods(http.MethodPost)
	r.HandleFunc("/orders", h.listOrders).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}", h.getOrder).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}/cancel", h.cancelOrder).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id}/status", requireAdmin(h.updateOrderStatus)).Methods(http.MethodPost)

	// Payments.
	r.HandleFunc("/payments/intents", h.createPaymentIntent).Methods(http.MethodPost)
	r.HandleFunc("/payments/{id}", h.getPayment).Methods(http.MethodGet)

	// Wishlist.
	r.HandleFunc("/wishlist", h.listWishlist).Methods(http.MethodGet)
	r.HandleFunc("/wishlist", h.addWishlistItem).Methods(http.MethodPost)
	r.HandleFunc("/wishlist/{productID}", h.removeWishlistItem).Methods(http.MethodDelete)

	// Notifications.
	r.HandleFunc("/notifications", h.listNotifications).Methods(http.MethodGet)
	r.HandleFunc("/notifications/read-all", h.markAllNotificationsRead).Methods(http.MethodPost)
	r.HandleFunc("/notifications/{id}/read", h.markNotificationRead).Methods(http.MethodPost)
	r.HandleFunc("/notifications/ws", h.notificationsWS).Methods(http.MethodGet)

	// Matching.
	r.HandleFunc("/matches", h.createMatch).Methods(http.MethodPost)
	r.HandleFunc("/matches", h.listMatches).Methods(http.MethodGet)

	// Promotions.
	r.HandleFunc("/promotions", requireAdmin(h.createPromotion)).Methods(http.MethodPost)
	r.HandleFunc("/promotions", requireAdmin(h.listPromotions)).Methods(http.MethodGet)
	r.HandleFunc("/promotions/{id}", requireAdmin(h.updatePromotion)).Methods(http.MethodPatch)

	auth := newAuthMiddleware(application.Users, []string{
		"/healthz",
		"/metrics",
		"/auth/register",
		"/auth/login",
		"/payments/webhooks/stripe",
		"/payments/webhooks/paypal",
	}, []string{"/products", "/listings"}, log)
	limiter := newRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)

	var chained http.Handler = r
	chained = limiter.Handler(chained)
	chained = auth.Handler(chained)
	chained = requestLogger(log)(chained)
	chained = corsMiddleware(cfg.Server.AllowedOrigins)(chained)
	chained = securityHeaders(chained)
	chained = metrics.InstrumentHandler(chained)
	return chained
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	vm, err := mem.VirtualMemory()
	stats := map[string]interface{}{
		"status":     "ok",
		"uptime":     time.Since(startTime).String(),
		"goroutines": runtime.NumGoroutine(),
	}
	if err == nil {
		stats["memory_used_percent"] = vm.UsedPercent
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	u, err := h.app.Users.Register(r.Context(), payload.Email, payload.Name, payload.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	u, token, err := h.app.Users.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": u, "token": token})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Users.Get(r.Context(), UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	u, err := h.app.Users.UpdateProfile(r.Context(), UserID(r.Context()), payload.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.app.Users.ChangePassword(r.Context(), UserID(r.Context()), payload.Current, payload.New); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read payload: %w", err))
		return
	}

	if err := h.app.Payments.HandleStripeWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		h.log.WithError(err).Warn("stripe webhook rejected")
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) paypalWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read payload: %w", err))
		return
	}

	if err := h.app.Payments.HandlePayPalWebhook(r.Context(), payload); err != nil {
		h.log.WithError(err).Warn("paypal webhook rejected")
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) notificationsWS(w http.ResponseWriter, r *http.Request) {
	h.app.Hub.ServeWS(w, r, UserID(r.Context()))
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicate), errors.Is(err, users.ErrEmailTaken):
		status = http.StatusConflict
	case errors.Is(err, users.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, orders.ErrEmptyCart), errors.Is(err, orders.ErrInsufficientStock),
		errors.Is(err, payments.ErrOrderNotPayable):
		status = http.StatusConflict
	case errors.Is(err, payments.ErrUnknownProvider), errors.Is(err, promotions.ErrInvalidCode):
		status = http.StatusBadRequest
	}
	writeError(w, status, err)
}
