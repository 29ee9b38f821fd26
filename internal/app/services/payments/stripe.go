package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/payment"
)

// signatureTolerance bounds how old a webhook timestamp may be before the
// delivery is rejected as a possible replay.
const signatureTolerance = 5 * time.Minute

// StripeGateway drives the Stripe PaymentIntents API. Stripe expects
// form-encoded requests and returns JSON.
type StripeGateway struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
}

// NewStripeGateway constructs a Stripe gateway.
func NewStripeGateway(baseURL, secretKey string) *StripeGateway {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &StripeGateway{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
	}
}

// Provider implements Gateway.
func (g *StripeGateway) Provider() string { return payment.ProviderStripe }

// CreateIntent opens a PaymentIntent for the payment's amount.
func (g *StripeGateway) CreateIntent(ctx context.Context, p payment.Payment) (Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(p.AmountCents, 10))
	form.Set("currency", strings.ToLower(p.Currency))
	form.Set("metadata[order_id]", p.OrderID)

	body, err := g.do(ctx, http.MethodPost, "/v1/payment_intents", form)
	if err != nil {
		return Intent{}, err
	}
	return stripeIntent(body), nil
}

// GetIntent fetches the current state of a PaymentIntent.
func (g *StripeGateway) GetIntent(ctx context.Context, intentID string) (Intent, error) {
	body, err := g.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(intentID), nil)
	if err != nil {
		return Intent{}, err
	}
	return stripeIntent(body), nil
}

func (g *StripeGateway) do(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	var reader *strings.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	} else {
		reader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stripe request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read stripe response: %w", err)
	}
	if resp.StatusCode >= 400 {
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, fmt.Errorf("stripe %s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	return body, nil
}

func stripeIntent(body []byte) Intent {
	doc := gjson.ParseBytes(body)
	return Intent{
		ID:            doc.Get("id").String(),
		ClientSecret:  doc.Get("client_secret").String(),
		Status:        stripeStatus(doc.Get("status").String()),
		FailureReason: doc.Get("last_payment_error.message").String(),
	}
}

// stripeStatus maps Stripe intent statuses onto the normalized set.
func stripeStatus(s string) string {
	switch s {
	case "succeeded":
		return payment.StatusSucceeded
	case "canceled":
		return payment.StatusFailed
	default:
		return payment.StatusPending
	}
}

// VerifyStripeSignature checks a Stripe-Signature header against the raw
// webhook payload. The header carries a timestamp and one or more v1
// signatures; the expected signature is HMAC-SHA256 of "timestamp.payload".
func VerifyStripeSignature(payload []byte, header, secret string, now time.Time) error {
	var timestamp string
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return fmt.Errorf("malformed signature header")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed signature timestamp")
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return fmt.Errorf("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return fmt.Errorf("no matching signature")
}
