package payments

import (
	"context"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/payment"
)

// Intent is a provider-side payment object in normalized form. Status uses
// the payment.Status* values.
type Intent struct {
	ID            string
	ClientSecret  string
	ApproveURL    string
	Status        string
	FailureReason string
}

// Gateway abstracts one payment provider.
type Gateway interface {
	// Provider returns the payment.Provider* name this gateway serves.
	Provider() string

	// CreateIntent opens a payment on the provider for the given amount.
	CreateIntent(ctx context.Context, p payment.Payment) (Intent, error)

	// GetIntent fetches the provider's current view of an intent. The
	// reconciler uses this to resolve payments whose webhook never arrived.
	GetIntent(ctx context.Context, intentID string) (Intent, error)
}
