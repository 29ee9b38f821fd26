package catalog

import "time"

// Product is an aggregated catalog entry. Prices are stored in minor units
// (cents) to avoid float drift in order math.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Brand       string    `json:"brand,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	Currency    string    `json:"currency"`
	Stock       int       `json:"stock"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Listing is a merchant platform's offer for a product.
type Listing struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	Platform   string    `json:"platform"`
	URL        string    `json:"url"`
	PriceCents int64     `json:"price_cents"`
	Currency   string    `json:"currency"`
	Available  bool      `json:"available"`
	FetchedAt  time.Time `json:"fetched_at,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Filter narrows product listings.
type Filter struct {
	Query         string
	Category      string
	MinPriceCents int64
	MaxPriceCents int64
	OnlyActive    bool
}
