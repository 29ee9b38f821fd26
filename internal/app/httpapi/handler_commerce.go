package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/catalog"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/match"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/order"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/promotion"
	"github.com/wirebustech/wyoiwyget/internal/app/services/matching"
)

// --- Catalog ---

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.Filter{
		Query:      q.Get("q"),
		Category:   q.Get("category"),
		OnlyActive: q.Get("include_inactive") != "true",
	}
	if v := q.Get("min_price_cents"); v != "" {
		filter.MinPriceCents, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("max_price_cents"); v != "" {
		filter.MaxPriceCents, _ = strconv.ParseInt(v, 10, 64)
	}

	products, err := h.app.Catalog.ListProducts(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Catalog.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := decodeJSON(r.Body, &p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Catalog.CreateProduct(r.Context(), p)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := decodeJSON(r.Body, &p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p.ID = mux.Vars(r)["id"]

	updated, err := h.app.Catalog.UpdateProduct(r.Context(), p)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Catalog.DeleteProduct(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.app.Catalog.ListListings(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

func (h *handler) addListing(w http.ResponseWriter, r *http.Request) {
	var l catalog.Listing
	if err := decodeJSON(r.Body, &l); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	l.ProductID = mux.Vars(r)["id"]

	created, err := h.app.Catalog.AddListing(r.Context(), l)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) removeListing(w http.ResponseWriter, r *http.Request) {
	if _, err := h.app.Catalog.RemoveListing(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Cart ---

func (h *handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Carts.Get(r.Context(), UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, err := h.app.Carts.AddItem(r.Context(), UserID(r.Context()), payload.ProductID, payload.Quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, err := h.app.Carts.UpdateItem(r.Context(), UserID(r.Context()), mux.Vars(r)["productID"], payload.Quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Carts.RemoveItem(r.Context(), UserID(r.Context()), mux.Vars(r)["productID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) clearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Carts.Clear(r.Context(), UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// --- Orders ---

func (h *handler) checkout(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PromoCode string `json:"promo_code"`
	}
	// An empty body is a checkout without a promo code.
	if err := decodeJSON(r.Body, &payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	o, err := h.app.Orders.Checkout(r.Context(), UserID(r.Context()), payload.PromoCode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Orders.List(r.Context(), UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.app.Orders.GetForUser(r.Context(), UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.app.Orders.Cancel(r.Context(), UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !order.ValidStatus(payload.Status) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown order status %q", payload.Status))
		return
	}

	o, err := h.app.Orders.UpdateStatus(r.Context(), mux.Vars(r)["id"], payload.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// --- Payments ---

func (h *handler) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OrderID  string `json:"order_id"`
		Provider string `json:"provider"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := h.app.Payments.CreateIntent(r.Context(), UserID(r.Context()), payload.OrderID, payload.Provider)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handler) getPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Payments.GetForUser(r.Context(), UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Wishlist ---

func (h *handler) listWishlist(w http.ResponseWriter, r *http.Request) {
	items, err := h.app.Wishlists.List(r.Context(), UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) addWishlistItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProductID string `json:"product_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := h.app.Wishlists.Add(r.Context(), UserID(r.Context()), payload.ProductID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *handler) removeWishlistItem(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Wishlists.Remove(r.Context(), UserID(r.Context()), mux.Vars(r)["productID"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Notifications ---

func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Notifications.List(r.Context(), UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.Notifications.MarkRead(r.Context(), UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *handler) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.app.Notifications.MarkAllRead(r.Context(), UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// --- Matching ---

func (h *handler) createMatch(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SourceURL string              `json:"source_url"`
		Platforms []string            `json:"platforms"`
		Source    match.SourceProduct `json:"source"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.app.Matching.Match(r.Context(), UserID(r.Context()), matching.Request{
		SourceURL: payload.SourceURL,
		Source:    payload.Source,
		Platforms: payload.Platforms,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) listMatches(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.app.Matching.History(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// --- Promotions ---

func (h *handler) createPromotion(w http.ResponseWriter, r *http.Request) {
	var rule promotion.Rule
	if err := decodeJSON(r.Body, &rule); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Promotions.CreateRule(r.Context(), rule)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listPromotions(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Promotions.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) updatePromotion(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Description string `json:"description"`
		Source      string `json:"source"`
		Active      *bool  `json:"active"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id := mux.Vars(r)["id"]

	rule, err := h.app.Promotions.UpdateRule(r.Context(), promotion.Rule{
		ID:          id,
		Description: payload.Description,
		Source:      payload.Source,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if payload.Active != nil {
		rule, err = h.app.Promotions.SetActive(r.Context(), id, *payload.Active)
		if err != nil {
			writeServiceError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, rule)
}
