// Package audible implements the public Audible catalog products API used to
// find the ASIN matching a borrowed title.
package audible

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/jaegermaster/overdrive-tools/internal/logger"
)

// Endpoints lists the catalog API base URL per marketplace region.
var Endpoints = map[string]string{
	"au": "https://api.audible.com.au/1.0/catalog/products",
	"ca": "https://api.audible.ca/1.0/catalog/products",
	"de": "https://api.audible.de/1.0/catalog/products",
	"es": "https://api.audible.es/1.0/catalog/products",
	"fr": "https://api.audible.fr/1.0/catalog/products",
	"in": "https://api.audible.in/1.0/catalog/products",
	"it": "https://api.audible.it/1.0/catalog/products",
	"jp": "https://api.audible.co.jp/1.0/catalog/products",
	"us": "https://api.audible.com/1.0/catalog/products",
	"uk": "https://api.audible.co.uk/1.0/catalog/products",
}

// Regions returns the supported region codes, sorted.
func Regions() []string {
	regions := make([]string, 0, len(Endpoints))
	for region := range Endpoints {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions
}

// ValidRegion reports whether region is a known marketplace code.
func ValidRegion(region string) bool {
	_, ok := Endpoints[region]
	return ok
}

const defaultNumResults = 10

// Person is an author or narrator credit on a product.
type Person struct {
	Name string `json:"name"`
	ASIN string `json:"asin,omitempty"`
}

// Series describes the series a product belongs to.
type Series struct {
	Name     string `json:"name"`
	Position string `json:"sequence"`
}

// SeriesList tolerates the API returning either a single series object or a
// list of them.
type SeriesList []Series

// UnmarshalJSON implements json.Unmarshaler.
func (s *SeriesList) UnmarshalJSON(data []byte) error {
	var list []Series
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var single Series
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*s = SeriesList{single}
	return nil
}

// Product is a catalog search hit.
type Product struct {
	ASIN        string     `json:"asin"`
	Title       string     `json:"title"`
	Subtitle    string     `json:"subtitle,omitempty"`
	Authors     []Person   `json:"authors,omitempty"`
	Narrators   []Person   `json:"narrators,omitempty"`
	Series      SeriesList `json:"series,omitempty"`
	ReleaseDate string     `json:"release_date,omitempty"`
}

// SearchResponse is the catalog search result envelope.
type SearchResponse struct {
	Products []Product `json:"products"`
}

// Client is an Audible catalog API client.
type Client struct {
	httpClient *http.Client
	userAgent  string
	logger     *logger.Logger

	// endpoint overrides the region endpoint when set (tests)
	endpoint string
}

// Option configures the client.
type Option func(*Client)

// WithEndpoint overrides the per-region endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithUserAgent overrides the request user agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient creates a new Audible catalog client.
func NewClient(timeout time.Duration, log *logger.Logger, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_9_3) AppleWebKit/537.36 Chrome/35.0.1916.47 Safari/537.36",
		logger:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search queries the catalog for products matching the keywords.
func (c *Client) Search(ctx context.Context, keywords, region string) ([]Product, error) {
	endpoint := c.endpoint
	if endpoint == "" {
		var ok bool
		endpoint, ok = Endpoints[region]
		if !ok {
			return nil, fmt.Errorf("unknown region %q", region)
		}
	}

	params := url.Values{}
	params.Set("response_groups", "contributors,product_attrs,product_desc,product_extended_attrs,series")
	params.Set("num_results", fmt.Sprintf("%d", defaultNumResults))
	params.Set("products_sort_by", "Relevance")
	params.Set("keywords", keywords)

	requestURL := endpoint + "?" + params.Encode()

	c.logger.Debug("Searching Audible catalog", map[string]interface{}{
		"region":   region,
		"keywords": keywords,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog search returned status %d", resp.StatusCode)
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return searchResp.Products, nil
}
