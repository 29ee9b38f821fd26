package notification

import "time"

// Notification types emitted by the order and payment flows.
const (
	TypeOrderStatus   = "order_status"
	TypePaymentStatus = "payment_status"
	TypeSystem        = "system"
)

// Notification is a stored per-user message, optionally also pushed over the
// WebSocket hub.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
