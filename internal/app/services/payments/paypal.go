package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/payment"
	"github.com/wirebustech/wyoiwyget/internal/httputil"
)

// PayPalGateway drives the PayPal Orders API v2. Access tokens are obtained
// via client-credentials OAuth and cached until shortly before expiry.
type PayPalGateway struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalGateway constructs a PayPal gateway.
func NewPayPalGateway(baseURL, clientID, secret string) *PayPalGateway {
	if baseURL == "" {
		baseURL = "https://api-m.paypal.com"
	}
	return &PayPalGateway{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientID:   clientID,
		secret:     secret,
	}
}

// Provider implements Gateway.
func (g *PayPalGateway) Provider() string { return payment.ProviderPayPal }

// CreateIntent opens a PayPal order for the payment's amount and returns the
// approval URL the shopper is redirected to.
func (g *PayPalGateway) CreateIntent(ctx context.Context, p payment.Payment) (Intent, error) {
	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"reference_id": p.OrderID,
			"amount": map[string]string{
				"currency_code": strings.ToUpper(p.Currency),
				"value":         formatAmount(p.AmountCents),
			},
		}},
	}

	body, err := g.do(ctx, http.MethodPost, "/v2/checkout/orders", payload)
	if err != nil {
		return Intent{}, err
	}
	return paypalIntent(body), nil
}

// GetIntent fetches the current state of a PayPal order.
func (g *PayPalGateway) GetIntent(ctx context.Context, intentID string) (Intent, error) {
	body, err := g.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(intentID), nil)
	if err != nil {
		return Intent{}, err
	}
	return paypalIntent(body), nil
}

func (g *PayPalGateway) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	token, err := g.token(ctx)
	if err != nil {
		return nil, err
	}

	var reader *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal paypal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create paypal request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paypal request: %w", err)
	}

	var raw json.RawMessage
	if err := httputil.DecodeResponse(resp, &raw); err != nil {
		return nil, fmt.Errorf("paypal %s %s: %w", method, path, err)
	}
	return raw, nil
}

// token returns a cached access token, refreshing it when within a minute of
// expiry.
func (g *PayPalGateway) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && time.Until(g.tokenExpiry) > time.Minute {
		return g.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create paypal token request: %w", err)
	}
	req.SetBasicAuth(g.clientID, g.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal token request: %w", err)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := httputil.DecodeResponse(resp, &out); err != nil {
		return "", fmt.Errorf("paypal token: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("paypal token response missing access_token")
	}

	g.accessToken = out.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return g.accessToken, nil
}

func paypalIntent(body []byte) Intent {
	doc := gjson.ParseBytes(body)

	intent := Intent{
		ID:     doc.Get("id").String(),
		Status: paypalStatus(doc.Get("status").String()),
	}
	doc.Get("links").ForEach(func(_, link gjson.Result) bool {
		if link.Get("rel").String() == "approve" {
			intent.ApproveURL = link.Get("href").String()
			return false
		}
		return true
	})
	return intent
}

// paypalStatus maps PayPal order statuses onto the normalized set.
func paypalStatus(s string) string {
	switch s {
	case "COMPLETED":
		return payment.StatusSucceeded
	case "VOIDED":
		return payment.StatusFailed
	default:
		return payment.StatusPending
	}
}

// formatAmount renders minor units as the decimal string PayPal expects.
func formatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
