package payment

import "time"

// Providers supported by the payment service.
const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
)

// Payment statuses.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusExpired   = "expired"
)

// Payment tracks one provider intent for an order.
type Payment struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	Provider      string    `json:"provider"`
	IntentID      string    `json:"intent_id"`
	ClientSecret  string    `json:"client_secret,omitempty"`
	ApproveURL    string    `json:"approve_url,omitempty"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Event records a processed webhook delivery. The provider event ID is the
// idempotency key: a replayed delivery finds its event row and is skipped.
type Event struct {
	ID         string    `json:"id"`
	Provider   string    `json:"provider"`
	Type       string    `json:"type"`
	PaymentID  string    `json:"payment_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}
