// Package payments tracks provider payment intents for orders and reconciles
// them through webhooks and polling.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/notification"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/order"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/payment"
	"github.com/wirebustech/wyoiwyget/internal/app/metrics"
	"github.com/wirebustech/wyoiwyget/internal/app/services/notifications"
	"github.com/wirebustech/wyoiwyget/internal/app/services/orders"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
	"github.com/wirebustech/wyoiwyget/pkg/logger"
)

// ErrUnknownProvider is returned when no gateway serves the requested
// provider.
var ErrUnknownProvider = errors.New("unknown payment provider")

// ErrOrderNotPayable is returned when an intent is requested for an order
// that is not pending.
var ErrOrderNotPayable = errors.New("order is not payable")

// Service manages payments.
type Service struct {
	store               storage.PaymentStore
	orders              *orders.Service
	notifier            *notifications.Service
	gateways            map[string]Gateway
	stripeWebhookSecret string
	log                 *logger.Logger
	now                 func() time.Time
}

// New constructs a payment service.
func New(store storage.PaymentStore, orderSvc *orders.Service, stripeWebhookSecret string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("payments")
	}
	return &Service{
		store:               store,
		orders:              orderSvc,
		gateways:            make(map[string]Gateway),
		stripeWebhookSecret: stripeWebhookSecret,
		log:                 log,
		now:                 time.Now,
	}
}

// AttachGateway registers a provider gateway.
func (s *Service) AttachGateway(g Gateway) {
	s.gateways[g.Provider()] = g
}

// AttachNotifier wires the notification service.
func (s *Service) AttachNotifier(notifier *notifications.Service) {
	s.notifier = notifier
}

// CreateIntent opens a payment on the chosen provider for a pending order.
func (s *Service) CreateIntent(ctx context.Context, userID, orderID, provider string) (payment.Payment, error) {
	gw, ok := s.gateways[provider]
	if !ok {
		return payment.Payment{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	o, err := s.orders.GetForUser(ctx, userID, orderID)
	if err != nil {
		return payment.Payment{}, err
	}
	if o.Status != order.StatusPending {
		return payment.Payment{}, fmt.Errorf("%w: status %s", ErrOrderNotPayable, o.Status)
	}

	p := payment.Payment{
		OrderID:     o.ID,
		UserID:      userID,
		Provider:    provider,
		AmountCents: o.TotalCents,
		Currency:    o.Currency,
		Status:      payment.StatusPending,
	}

	intent, err := gw.CreateIntent(ctx, p)
	if err != nil {
		return payment.Payment{}, fmt.Errorf("create %s intent: %w", provider, err)
	}
	p.IntentID = intent.ID
	p.ClientSecret = intent.ClientSecret
	p.ApproveURL = intent.ApproveURL

	created, err := s.store.CreatePayment(ctx, p)
	if err != nil {
		return payment.Payment{}, err
	}
	s.log.Infof("payment %s opened on %s for order %s", created.ID, provider, orderID)
	return created, nil
}

// Get retrieves a payment by identifier.
func (s *Service) Get(ctx context.Context, id string) (payment.Payment, error) {
	return s.store.GetPayment(ctx, id)
}

// GetForUser retrieves a payment, hiding other users' payments as not found.
func (s *Service) GetForUser(ctx context.Context, userID, id string) (payment.Payment, error) {
	p, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return payment.Payment{}, err
	}
	if p.UserID != userID {
		return payment.Payment{}, storage.ErrNotFound
	}
	return p, nil
}

// HandleStripeWebhook verifies and applies one Stripe webhook delivery.
// Replayed deliveries are detected by event ID and skipped.
func (s *Service) HandleStripeWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	if err := VerifyStripeSignature(payload, sigHeader, s.stripeWebhookSecret, s.now()); err != nil {
		metrics.RecordPaymentEvent(payment.ProviderStripe, "error")
		return fmt.Errorf("verify stripe signature: %w", err)
	}

	doc := gjson.ParseBytes(payload)
	eventID := doc.Get("id").String()
	eventType := doc.Get("type").String()
	intentID := doc.Get("data.object.id").String()
	if eventID == "" || intentID == "" {
		metrics.RecordPaymentEvent(payment.ProviderStripe, "error")
		return fmt.Errorf("malformed stripe event")
	}

	switch eventType {
	case "payment_intent.succeeded":
		reason := ""
		return s.applyEvent(ctx, payment.ProviderStripe, eventID, eventType, intentID, payment.StatusSucceeded, reason)
	case "payment_intent.payment_failed":
		reason := doc.Get("data.object.last_payment_error.message").String()
		return s.applyEvent(ctx, payment.ProviderStripe, eventID, eventType, intentID, payment.StatusFailed, reason)
	case "payment_intent.canceled":
		return s.applyEvent(ctx, payment.ProviderStripe, eventID, eventType, intentID, payment.StatusFailed, "canceled")
	default:
		metrics.RecordPaymentEvent(payment.ProviderStripe, "ignored")
		s.log.Debugf("ignoring stripe event %s type %s", eventID, eventType)
		return nil
	}
}

// HandlePayPalWebhook applies one PayPal webhook delivery. Replayed
// deliveries are detected by event ID and skipped.
func (s *Service) HandlePayPalWebhook(ctx context.Context, payload []byte) error {
	doc := gjson.ParseBytes(payload)
	eventID := doc.Get("id").String()
	eventType := doc.Get("event_type").String()
	if eventID == "" {
		metrics.RecordPaymentEvent(payment.ProviderPayPal, "error")
		return fmt.Errorf("malformed paypal event")
	}

	switch eventType {
	case "CHECKOUT.ORDER.APPROVED", "PAYMENT.CAPTURE.COMPLETED":
		intentID := paypalIntentID(doc)
		if intentID == "" {
			metrics.RecordPaymentEvent(payment.ProviderPayPal, "error")
			return fmt.Errorf("paypal event %s missing order id", eventID)
		}
		return s.applyEvent(ctx, payment.ProviderPayPal, eventID, eventType, intentID, payment.StatusSucceeded, "")
	case "PAYMENT.CAPTURE.DENIED":
		intentID := paypalIntentID(doc)
		if intentID == "" {
			metrics.RecordPaymentEvent(payment.ProviderPayPal, "error")
			return fmt.Errorf("paypal event %s missing order id", eventID)
		}
		return s.applyEvent(ctx, payment.ProviderPayPal, eventID, eventType, intentID, payment.StatusFailed, "capture denied")
	default:
		metrics.RecordPaymentEvent(payment.ProviderPayPal, "ignored")
		s.log.Debugf("ignoring paypal event %s type %s", eventID, eventType)
		return nil
	}
}

// paypalIntentID digs the checkout order ID out of either event shape:
// order events carry it in resource.id, capture events in the
// supplementary_data related IDs.
func paypalIntentID(doc gjson.Result) string {
	if id := doc.Get("resource.supplementary_data.related_ids.order_id").String(); id != "" {
		return id
	}
	return doc.Get("resource.id").String()
}

// applyEvent records the delivery for idempotency, then moves the payment
// and its order.
func (s *Service) applyEvent(ctx context.Context, provider, eventID, eventType, intentID, status, reason string) error {
	p, err := s.store.GetPaymentByIntent(ctx, provider, intentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Intent not ours, e.g. created directly in the provider
			// dashboard. Acknowledge so the provider stops retrying.
			metrics.RecordPaymentEvent(provider, "ignored")
			s.log.Warnf("%s event %s references unknown intent %s", provider, eventID, intentID)
			return nil
		}
		return err
	}

	_, err = s.store.CreatePaymentEvent(ctx, payment.Event{
		ID:        eventID,
		Provider:  provider,
		Type:      eventType,
		PaymentID: p.ID,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			metrics.RecordPaymentEvent(provider, "duplicate")
			s.log.Infof("skipping replayed %s event %s", provider, eventID)
			return nil
		}
		return err
	}

	if err := s.resolve(ctx, p, status, reason); err != nil {
		return err
	}
	metrics.RecordPaymentEvent(provider, "applied")
	return nil
}

// resolve moves a payment to a terminal status and propagates the outcome to
// the order and the user. Already-terminal payments are left untouched.
func (s *Service) resolve(ctx context.Context, p payment.Payment, status, reason string) error {
	if p.Status != payment.StatusPending {
		return nil
	}

	p.Status = status
	p.FailureReason = reason
	updated, err := s.store.UpdatePayment(ctx, p)
	if err != nil {
		return err
	}

	if status == payment.StatusSucceeded {
		if _, err := s.orders.MarkPaid(ctx, p.OrderID); err != nil {
			return fmt.Errorf("mark order %s paid: %w", p.OrderID, err)
		}
	}

	s.notifyOutcome(ctx, updated)
	s.log.Infof("payment %s resolved as %s", p.ID, status)
	return nil
}

func (s *Service) notifyOutcome(ctx context.Context, p payment.Payment) {
	if s.notifier == nil {
		return
	}
	title := fmt.Sprintf("Payment for order %s %s", p.OrderID, p.Status)
	body := p.FailureReason
	if _, err := s.notifier.Notify(ctx, p.UserID, notification.TypePaymentStatus, title, body); err != nil {
		s.log.WithError(err).Warnf("notify outcome of payment %s", p.ID)
	}
}
