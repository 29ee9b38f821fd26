package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	app "github.com/wirebustech/wyoiwyget/internal/app"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/catalog"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/user"
	"github.com/wirebustech/wyoiwyget/internal/app/storage/memory"
	"github.com/wirebustech/wyoiwyget/internal/config"
)

type env struct {
	t      *testing.T
	server *httptest.Server
	store  *memory.Store
	app    *app.Application
}

func newEnv(t *testing.T) *env {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Auth:   config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
		RateLimit: config.RateLimitConfig{
			RequestsPerSecond: 1000,
			Burst:             1000,
		},
		Stripe: config.StripeConfig{WebhookSecret: "whsec_test"},
	}

	store := memory.New()
	application, err := app.New(cfg, app.Stores{
		Users:         store,
		Products:      store,
		Carts:         store,
		Orders:        store,
		Wishlists:     store,
		Notifications: store,
		Payments:      store,
		Matches:       store,
		Promotions:    store,
	}, nil)
	if err != nil {
		t.Fatalf("build application: %v", err)
	}

	server := httptest.NewServer(NewHandler(application, cfg, nil))
	t.Cleanup(server.Close)

	return &env{t: t, server: server, store: store, app: application}
}

func (e *env) do(method, path, token string, body interface{}) (*http.Response, []byte) {
	e.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		e.t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		e.t.Fatalf("read response: %v", err)
	}
	return resp, buf.Bytes()
}

func (e *env) registerAndLogin(email string) (string, string) {
	e.t.Helper()

	resp, body := e.do(http.MethodPost, "/auth/register", "", map[string]string{
		"email":    email,
		"name":     "Test Shopper",
		"password": "hunter2secret",
	})
	if resp.StatusCode != http.StatusCreated {
		e.t.Fatalf("register status %d: %s", resp.StatusCode, body)
	}
	var created user.User
	if err := json.Unmarshal(body, &created); err != nil {
		e.t.Fatalf("decode register response: %v", err)
	}

	resp, body = e.do(http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": "hunter2secret",
	})
	if resp.StatusCode != http.StatusOK {
		e.t.Fatalf("login status %d: %s", resp.StatusCode, body)
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &login); err != nil {
		e.t.Fatalf("decode login response: %v", err)
	}
	return created.ID, login.Token
}

func (e *env) adminToken() string {
	e.t.Helper()

	id, _ := e.registerAndLogin("admin@example.com")
	u, err := e.store.GetUser(context.Background(), id)
	if err != nil {
		e.t.Fatalf("get admin user: %v", err)
	}
	u.Role = user.RoleAdmin
	if _, err := e.store.UpdateUser(context.Background(), u); err != nil {
		e.t.Fatalf("promote admin: %v", err)
	}
	token, err := e.app.Users.IssueToken(u)
	if err != nil {
		e.t.Fatalf("issue admin token: %v", err)
	}
	return token
}

func TestHealthIsPublic(t *testing.T) {
	e := newEnv(t)
	resp, body := e.do(http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
}

func TestProfileRequiresAuth(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.do(http.MethodGet, "/users/me", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}

	_, token := e.registerAndLogin("shopper@example.com")
	resp, body := e.do(http.MethodGet, "/users/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var me user.User
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if me.Email != "shopper@example.com" {
		t.Fatalf("profile email %q", me.Email)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	e := newEnv(t)
	e.registerAndLogin("shopper@example.com")

	resp, _ := e.do(http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "shopper@example.com",
		"password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
}

func TestProductBrowsingIsPublicButWritesAreAdminOnly(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.do(http.MethodGet, "/products", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public list status %d", resp.StatusCode)
	}

	// Anonymous and customer writes are rejected.
	resp, _ = e.do(http.MethodPost, "/products", "", catalog.Product{Name: "mug"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("anonymous create status %d, want 403", resp.StatusCode)
	}
	_, customer := e.registerAndLogin("shopper@example.com")
	resp, _ = e.do(http.MethodPost, "/products", customer, catalog.Product{Name: "mug"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("customer create status %d, want 403", resp.StatusCode)
	}

	admin := e.adminToken()
	resp, body := e.do(http.MethodPost, "/products", admin, catalog.Product{
		Name:       "mug",
		PriceCents: 1250,
		Currency:   "usd",
		Stock:      5,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("admin create status %d: %s", resp.StatusCode, body)
	}
	var created catalog.Product
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode product: %v", err)
	}

	resp, body = e.do(http.MethodGet, "/products/"+created.ID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public get status %d: %s", resp.StatusCode, body)
	}
}

func TestCartAndCheckoutFlow(t *testing.T) {
	e := newEnv(t)
	admin := e.adminToken()

	_, body := e.do(http.MethodPost, "/products", admin, catalog.Product{
		Name: "kettle", PriceCents: 4999, Currency: "usd", Stock: 3,
	})
	var p catalog.Product
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("decode product: %v", err)
	}

	_, token := e.registerAndLogin("shopper@example.com")

	resp, body := e.do(http.MethodPost, "/cart/items", token, map[string]interface{}{
		"product_id": p.ID,
		"quantity":   2,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add to cart status %d: %s", resp.StatusCode, body)
	}

	resp, body = e.do(http.MethodPost, "/orders", token, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout status %d: %s", resp.StatusCode, body)
	}
	var o struct {
		ID         string `json:"id"`
		TotalCents int64  `json:"total_cents"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(body, &o); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if o.TotalCents != 9998 {
		t.Fatalf("total = %d, want 9998", o.TotalCents)
	}
	if o.Status != "pending" {
		t.Fatalf("status = %q, want pending", o.Status)
	}

	// Checkout again with the now-empty cart conflicts.
	resp, _ = e.do(http.MethodPost, "/orders", token, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("empty-cart checkout status %d, want 409", resp.StatusCode)
	}

	resp, body = e.do(http.MethodGet, "/orders/"+o.ID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get order status %d: %s", resp.StatusCode, body)
	}

	// Another user cannot see the order.
	_, other := e.registerAndLogin("other@example.com")
	resp, _ = e.do(http.MethodGet, "/orders/"+o.ID, other, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign order status %d, want 404", resp.StatusCode)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	e := newEnv(t)

	req, _ := http.NewRequest(http.MethodPost, e.server.URL+"/payments/webhooks/stripe",
		bytes.NewReader([]byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestWishlistFlow(t *testing.T) {
	e := newEnv(t)
	admin := e.adminToken()

	_, body := e.do(http.MethodPost, "/products", admin, catalog.Product{Name: "mug", PriceCents: 100, Stock: 1})
	var p catalog.Product
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("decode product: %v", err)
	}

	_, token := e.registerAndLogin("shopper@example.com")

	resp, body := e.do(http.MethodPost, "/wishlist", token, map[string]string{"product_id": p.ID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add wishlist status %d: %s", resp.StatusCode, body)
	}

	resp, body = e.do(http.MethodGet, "/wishlist", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list wishlist status %d", resp.StatusCode)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		t.Fatalf("decode wishlist: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("wishlist size %d, want 1", len(items))
	}

	resp, _ = e.do(http.MethodDelete, fmt.Sprintf("/wishlist/%s", p.ID), token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remove wishlist status %d, want 204", resp.StatusCode)
	}
}

func TestPromotionUpdateKeepsInactiveRule(t *testing.T) {
	e := newEnv(t)
	admin := e.adminToken()

	resp, body := e.do(http.MethodPost, "/promotions", admin, map[string]string{
		"code":   "SPRING",
		"source": "function(order) { return 500 }",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create promotion status %d: %s", resp.StatusCode, body)
	}
	var rule struct {
		ID     string `json:"id"`
		Active bool   `json:"active"`
	}
	if err := json.Unmarshal(body, &rule); err != nil {
		t.Fatalf("decode rule: %v", err)
	}

	off := false
	resp, body = e.do(http.MethodPatch, "/promotions/"+rule.ID, admin, map[string]interface{}{"active": off})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate status %d: %s", resp.StatusCode, body)
	}

	resp, body = e.do(http.MethodPatch, "/promotions/"+rule.ID, admin, map[string]string{"description": "spring sale"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("describe status %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &rule); err != nil {
		t.Fatalf("decode updated rule: %v", err)
	}
	if rule.Active {
		t.Fatal("description-only update reactivated the rule")
	}
}

func TestTraceIDHeaderIsSet(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.do(http.MethodGet, "/healthz", "", nil)
	if resp.Header.Get("X-Trace-Id") == "" {
		t.Fatal("expected X-Trace-Id response header")
	}
}
