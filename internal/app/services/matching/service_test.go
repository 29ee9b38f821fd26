package matching

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/match"
	"github.com/wirebustech/wyoiwyget/internal/app/storage/memory"
	"github.com/wirebustech/wyoiwyget/internal/config"
)

// newPlatformServer serves a minimal platform API: /search returns result
// lists, /product/{id} returns a single product object.
func newPlatformServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"results": [
				{"name": "Acme Steel Kettle 1.7L", "price": 47.50, "currency": "usd", "link": "https://shop.test/p/1", "img": "https://shop.test/i/1.jpg"},
				{"name": "Acme Steel Kettle", "price": 52.00, "currency": "usd", "link": "https://shop.test/p/2", "img": ""},
				{"name": "Wool Running Socks", "price": 12.99, "currency": "usd", "link": "https://shop.test/p/3", "img": ""}
			]
		}`)
	})
	mux.HandleFunc("/product", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name": "Acme Steel Kettle 1.7L", "price": 49.99, "currency": "usd", "img": "https://origin.test/i/9.jpg"}`)
	})
	return httptest.NewServer(mux)
}

func testSources(searchBase, host string) *config.SourcesConfig {
	return &config.SourcesConfig{Sources: []config.PlatformSource{
		{
			Name:      "shopzone",
			SearchURL: searchBase + "/search?q=%s",
			Hosts:     []string{host},
			Fields: config.FieldMappings{
				Items:    "$.results",
				Title:    "$.name",
				Price:    "$.price",
				Currency: "$.currency",
				URL:      "$.link",
				Image:    "$.img",
			},
		},
	}}
}

func TestMatchScoresAndPersists(t *testing.T) {
	var hits int32
	srv := newPlatformServer(t, &hits)
	defer srv.Close()

	store := memory.New()
	svc := New(store, NewPlatformClient(testSources(srv.URL, "origin.test")), NewMemoryCache(), time.Minute, nil)

	result, err := svc.Match(context.Background(), "user-1", Request{
		SourceURL: "https://origin.test/product",
		Source:    sourceKettle(),
		Platforms: []string{"shopzone"},
	})
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	if len(result.Matches) == 0 {
		t.Fatal("expected at least one candidate")
	}
	for _, cand := range result.Matches {
		if cand.Platform != "shopzone" {
			t.Fatalf("unexpected platform %q", cand.Platform)
		}
		if cand.Title == "Wool Running Socks" {
			t.Fatal("unrelated candidate survived the score floor")
		}
	}
	if result.Matches[0].Title != "Acme Steel Kettle 1.7L" {
		t.Fatalf("best match = %q, want exact title first", result.Matches[0].Title)
	}
	if result.Matches[0].PriceCents != 4750 {
		t.Fatalf("best match price = %d, want 4750", result.Matches[0].PriceCents)
	}

	history, err := svc.History(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
}

func TestMatchUsesCache(t *testing.T) {
	var hits int32
	srv := newPlatformServer(t, &hits)
	defer srv.Close()

	store := memory.New()
	svc := New(store, NewPlatformClient(testSources(srv.URL, "origin.test")), NewMemoryCache(), time.Minute, nil)

	req := Request{SourceURL: "https://origin.test/product", Source: sourceKettle(), Platforms: []string{"shopzone"}}
	first, err := svc.Match(context.Background(), "user-1", req)
	if err != nil {
		t.Fatalf("first match: %v", err)
	}
	second, err := svc.Match(context.Background(), "user-2", req)
	if err != nil {
		t.Fatalf("second match: %v", err)
	}

	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("platform searched %d times, want 1 (cache hit)", n)
	}

	// A cache hit still writes the requesting user's own history row.
	if second.ID == first.ID {
		t.Fatal("cache hit returned another user's persisted result")
	}
	if second.UserID != "user-2" {
		t.Fatalf("cached result user = %q, want user-2", second.UserID)
	}
	history, err := svc.History(context.Background(), "user-2", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("user-2 history has %d entries, want 1", len(history))
	}
}

func TestFetchProduct(t *testing.T) {
	var hits int32
	srv := newPlatformServer(t, &hits)
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	client := NewPlatformClient(testSources(srv.URL, u.Host))

	product, platform, err := client.FetchProduct(context.Background(), srv.URL+"/product")
	if err != nil {
		t.Fatalf("fetch product: %v", err)
	}
	if platform != "shopzone" {
		t.Fatalf("platform = %q", platform)
	}
	if product.Title != "Acme Steel Kettle 1.7L" {
		t.Fatalf("title = %q", product.Title)
	}
	if product.PriceCents != 4999 {
		t.Fatalf("price = %d, want 4999", product.PriceCents)
	}
}

func TestMatchRequiresSource(t *testing.T) {
	store := memory.New()
	svc := New(store, NewPlatformClient(&config.SourcesConfig{}), NewMemoryCache(), time.Minute, nil)

	if _, err := svc.Match(context.Background(), "user-1", Request{}); err == nil {
		t.Fatal("expected error for empty request")
	}
}

func sourceKettle() match.SourceProduct {
	return match.SourceProduct{Title: "Acme Steel Kettle 1.7L", Brand: "Acme", PriceCents: 4999, Currency: "usd"}
}
