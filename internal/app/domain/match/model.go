package match

import "time"

// SourceProduct is the product extracted from the URL a user submitted.
type SourceProduct struct {
	Title      string `json:"title"`
	Brand      string `json:"brand,omitempty"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
}

// Candidate is one scored offer found on a target platform.
type Candidate struct {
	Platform   string  `json:"platform"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	PriceCents int64   `json:"price_cents"`
	Currency   string  `json:"currency,omitempty"`
	ImageURL   string  `json:"image_url,omitempty"`
	Score      float64 `json:"score"`
}

// Result is a completed matching run, persisted as user history.
type Result struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	SourceURL string        `json:"source_url"`
	Source    SourceProduct `json:"source"`
	Platforms []string      `json:"platforms"`
	Matches   []Candidate   `json:"matches"`
	CreatedAt time.Time     `json:"created_at"`
}
