package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"

	domain "github.com/wirebustech/wyoiwyget/internal/app/domain/catalog"
	"github.com/wirebustech/wyoiwyget/internal/app/domain/match"
	"github.com/wirebustech/wyoiwyget/internal/app/services/catalog"
	"github.com/wirebustech/wyoiwyget/internal/config"
	"github.com/wirebustech/wyoiwyget/internal/httputil"
)

// PlatformClient queries merchant platforms described by the sources file.
// Platforms are expected to answer with JSON; field mappings are JSONPath
// expressions into those payloads.
type PlatformClient struct {
	sources *config.SourcesConfig
	http    *httputil.Client
}

// NewPlatformClient constructs a platform client.
func NewPlatformClient(sources *config.SourcesConfig) *PlatformClient {
	return &PlatformClient{
		sources: sources,
		http:    httputil.NewClient(httputil.ClientConfig{Timeout: 15 * time.Second}),
	}
}

// SourceFor resolves the platform behind a product URL by hostname.
func (c *PlatformClient) SourceFor(rawURL string) (config.PlatformSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return config.PlatformSource{}, fmt.Errorf("invalid product url %q", rawURL)
	}
	src, ok := c.sources.SourceForHost(u.Hostname())
	if !ok {
		return config.PlatformSource{}, fmt.Errorf("no platform configured for host %s", u.Hostname())
	}
	return src, nil
}

// Sources returns every configured platform name.
func (c *PlatformClient) Sources() []string {
	names := make([]string, 0, len(c.sources.Sources))
	for _, src := range c.sources.Sources {
		names = append(names, src.Name)
	}
	return names
}

// FetchProduct retrieves the product behind a URL from its own platform.
// Product endpoints are expected to return a single object that the field
// mappings apply to directly.
func (c *PlatformClient) FetchProduct(ctx context.Context, rawURL string) (match.SourceProduct, string, error) {
	src, err := c.SourceFor(rawURL)
	if err != nil {
		return match.SourceProduct{}, "", err
	}

	body, err := c.http.FetchBytes(ctx, rawURL)
	if err != nil {
		return match.SourceProduct{}, "", fmt.Errorf("fetch %s product: %w", src.Name, err)
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return match.SourceProduct{}, "", fmt.Errorf("parse %s product payload: %w", src.Name, err)
	}

	product := match.SourceProduct{
		Title:      pathString(doc, src.Fields.Title),
		PriceCents: toCents(pathValue(doc, src.Fields.Price)),
		Currency:   pathString(doc, src.Fields.Currency),
		ImageURL:   pathString(doc, src.Fields.Image),
	}
	if product.Title == "" {
		return match.SourceProduct{}, "", fmt.Errorf("%s product payload missing title", src.Name)
	}
	return product, src.Name, nil
}

// Search queries one platform and returns unscored candidates.
func (c *PlatformClient) Search(ctx context.Context, src config.PlatformSource, query string) ([]match.Candidate, error) {
	searchURL := fmt.Sprintf(src.SearchURL, url.QueryEscape(query))

	body, err := c.http.FetchBytes(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", src.Name, err)
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse %s search payload: %w", src.Name, err)
	}

	items, err := jsonpath.Get(src.Fields.Items, doc)
	if err != nil {
		return nil, fmt.Errorf("extract %s items: %w", src.Name, err)
	}
	list, ok := items.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s items path did not yield a list", src.Name)
	}

	candidates := make([]match.Candidate, 0, len(list))
	for _, item := range list {
		cand := match.Candidate{
			Platform:   src.Name,
			Title:      pathString(item, src.Fields.Title),
			URL:        pathString(item, src.Fields.URL),
			PriceCents: toCents(pathValue(item, src.Fields.Price)),
			Currency:   pathString(item, src.Fields.Currency),
			ImageURL:   pathString(item, src.Fields.Image),
		}
		if cand.Title == "" || cand.URL == "" {
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// FetchOffer implements catalog.Fetcher so the listing refresher can reuse
// the platform mappings to pull current prices.
func (c *PlatformClient) FetchOffer(ctx context.Context, listing domain.Listing) (catalog.Offer, error) {
	product, _, err := c.FetchProduct(ctx, listing.URL)
	if err != nil {
		return catalog.Offer{}, err
	}
	return catalog.Offer{
		PriceCents: product.PriceCents,
		Currency:   product.Currency,
		Available:  product.PriceCents > 0,
	}, nil
}

func pathValue(doc interface{}, path string) interface{} {
	if path == "" {
		return nil
	}
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil
	}
	return v
}

func pathString(doc interface{}, path string) string {
	switch v := pathValue(doc, path).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// toCents converts a platform price value into minor units. Platforms report
// prices as decimal numbers or numeric strings.
func toCents(v interface{}) int64 {
	switch price := v.(type) {
	case float64:
		return int64(math.Round(price * 100))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(price), 64)
		if err != nil {
			return 0
		}
		return int64(math.Round(f * 100))
	default:
		return 0
	}
}
