package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/catalog"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/order"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/payment"
	"github.com/wirebustech/wyoiwyget/internal/app/services/carts"
	"github.com/wirebustech/wyoiwyget/internal/app/services/orders"
	"github.com/wirebustech/wyoiwyget/internal/app/storage/memory"
)

const webhookSecret = "whsec_test"

// fakeGateway returns canned intents and records GetIntent responses for the
// reconciler tests.
type fakeGateway struct {
	provider     string
	nextIntentID string
	intentStatus map[string]Intent
}

func (g *fakeGateway) Provider() string { return g.provider }

func (g *fakeGateway) CreateIntent(ctx context.Context, p payment.Payment) (Intent, error) {
	return Intent{ID: g.nextIntentID, ClientSecret: g.nextIntentID + "_secret", Status: payment.StatusPending}, nil
}

func (g *fakeGateway) GetIntent(ctx context.Context, intentID string) (Intent, error) {
	if intent, ok := g.intentStatus[intentID]; ok {
		return intent, nil
	}
	return Intent{ID: intentID, Status: payment.StatusPending}, nil
}

type fixture struct {
	store   *memory.Store
	orders  *orders.Service
	svc     *Service
	gateway *fakeGateway
	orderID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	cartSvc := carts.New(store, store, nil)
	orderSvc := orders.New(store, store, cartSvc, nil)

	p, err := store.CreateProduct(ctx, catalog.Product{Name: "mug", PriceCents: 1250, Currency: "usd", Stock: 10, Active: true})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if _, err := cartSvc.AddItem(ctx, "user-1", p.ID, 2); err != nil {
		t.Fatalf("add item: %v", err)
	}
	o, err := orderSvc.Checkout(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	gw := &fakeGateway{provider: payment.ProviderStripe, nextIntentID: "pi_123", intentStatus: make(map[string]Intent)}
	svc := New(store, orderSvc, webhookSecret, nil)
	svc.AttachGateway(gw)

	return &fixture{store: store, orders: orderSvc, svc: svc, gateway: gw, orderID: o.ID}
}

func signStripePayload(payload []byte, at time.Time) string {
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestCreateIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreateIntent(ctx, "user-1", f.orderID, payment.ProviderStripe)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if p.IntentID != "pi_123" {
		t.Fatalf("intent id = %q", p.IntentID)
	}
	if p.AmountCents != 2500 {
		t.Fatalf("amount = %d, want 2500", p.AmountCents)
	}
	if p.Status != payment.StatusPending {
		t.Fatalf("status = %q, want pending", p.Status)
	}
}

func TestCreateIntentRejectsUnknownProvider(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.CreateIntent(context.Background(), "user-1", f.orderID, "square"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestCreateIntentRejectsForeignOrder(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.CreateIntent(context.Background(), "user-2", f.orderID, payment.ProviderStripe); err == nil {
		t.Fatal("expected error for foreign order")
	}
}

func TestStripeWebhookSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateIntent(ctx, "user-1", f.orderID, payment.ProviderStripe); err != nil {
		t.Fatalf("create intent: %v", err)
	}

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)
	sig := signStripePayload(payload, time.Now())

	if err := f.svc.HandleStripeWebhook(ctx, payload, sig); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	p, err := f.store.GetPaymentByIntent(ctx, payment.ProviderStripe, "pi_123")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.Status != payment.StatusSucceeded {
		t.Fatalf("payment status = %q, want succeeded", p.Status)
	}

	o, err := f.store.GetOrder(ctx, f.orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != order.StatusPaid {
		t.Fatalf("order status = %q, want paid", o.Status)
	}
}

func TestStripeWebhookReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateIntent(ctx, "user-1", f.orderID, payment.ProviderStripe); err != nil {
		t.Fatalf("create intent: %v", err)
	}

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)
	sig := signStripePayload(payload, time.Now())

	if err := f.svc.HandleStripeWebhook(ctx, payload, sig); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := f.svc.HandleStripeWebhook(ctx, payload, sig); err != nil {
		t.Fatalf("replayed delivery: %v", err)
	}

	p, _ := f.store.GetPaymentByIntent(ctx, payment.ProviderStripe, "pi_123")
	if p.Status != payment.StatusSucceeded {
		t.Fatalf("payment status = %q after replay", p.Status)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)
	if err := f.svc.HandleStripeWebhook(context.Background(), payload, "t=123,v1=deadbeef"); err == nil {
		t.Fatal("expected signature rejection")
	}
}

func TestStripeWebhookFailureRecordsReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateIntent(ctx, "user-1", f.orderID, payment.ProviderStripe); err != nil {
		t.Fatalf("create intent: %v", err)
	}

	payload := []byte(`{"id":"evt_2","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_123","last_payment_error":{"message":"card declined"}}}}`)
	sig := signStripePayload(payload, time.Now())

	if err := f.svc.HandleStripeWebhook(ctx, payload, sig); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	p, _ := f.store.GetPaymentByIntent(ctx, payment.ProviderStripe, "pi_123")
	if p.Status != payment.StatusFailed {
		t.Fatalf("payment status = %q, want failed", p.Status)
	}
	if p.FailureReason != "card declined" {
		t.Fatalf("failure reason = %q", p.FailureReason)
	}

	o, _ := f.store.GetOrder(ctx, f.orderID)
	if o.Status != order.StatusPending {
		t.Fatalf("order status = %q, want pending after failed payment", o.Status)
	}
}

func TestPayPalWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paypal := &fakeGateway{provider: payment.ProviderPayPal, nextIntentID: "ord_9", intentStatus: make(map[string]Intent)}
	f.svc.AttachGateway(paypal)

	if _, err := f.svc.CreateIntent(ctx, "user-1", f.orderID, payment.ProviderPayPal); err != nil {
		t.Fatalf("create intent: %v", err)
	}

	payload := []byte(`{"id":"wh_1","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"ord_9"}}`)
	if err := f.svc.HandlePayPalWebhook(ctx, payload); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	p, err := f.store.GetPaymentByIntent(ctx, payment.ProviderPayPal, "ord_9")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.Status != payment.StatusSucceeded {
		t.Fatalf("payment status = %q, want succeeded", p.Status)
	}
}

func TestVerifyStripeSignatureTolerance(t *testing.T) {
	payload := []byte(`{"id":"evt_old"}`)
	sig := signStripePayload(payload, time.Now().Add(-10*time.Minute))
	if err := VerifyStripeSignature(payload, sig, webhookSecret, time.Now()); err == nil {
		t.Fatal("expected stale timestamp rejection")
	}
}

func TestReconcilerResolvesPendingPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreateIntent(ctx, "user-1", f.orderID, payment.ProviderStripe)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	f.gateway.intentStatus["pi_123"] = Intent{ID: "pi_123", Status: payment.StatusSucceeded}

	r := NewReconciler(f.store, f.svc, nil)
	r.tick(ctx)

	resolved, err := f.store.GetPayment(ctx, p.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if resolved.Status != payment.StatusSucceeded {
		t.Fatalf("payment status = %q, want succeeded after reconcile", resolved.Status)
	}

	o, _ := f.store.GetOrder(ctx, f.orderID)
	if o.Status != order.StatusPaid {
		t.Fatalf("order status = %q, want paid after reconcile", o.Status)
	}
}

func TestReconcilerPrunesScheduleForWebhookResolvedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreateIntent(ctx, "user-1", f.orderID, payment.ProviderStripe)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	r := NewReconciler(f.store, f.svc, nil)

	// First tick: the intent is still pending, so a backoff entry is recorded.
	r.tick(ctx)
	r.mu.Lock()
	_, scheduled := r.nextAttempt[p.ID]
	r.mu.Unlock()
	if !scheduled {
		t.Fatal("expected a backoff entry for the pending payment")
	}

	// The webhook resolves the payment between ticks.
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)
	if err := f.svc.HandleStripeWebhook(ctx, payload, signStripePayload(payload, time.Now())); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	r.tick(ctx)
	r.mu.Lock()
	remaining := len(r.nextAttempt)
	r.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("%d stale backoff entries after webhook resolution, want 0", remaining)
	}
}
