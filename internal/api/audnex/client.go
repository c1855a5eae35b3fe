// Package audnex implements the Audnex book metadata API, the source of
// chapter boundary data.
package audnex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jaegermaster/overdrive-tools/internal/logger"
)

// DefaultBaseURL is the public Audnex API endpoint.
const DefaultBaseURL = "https://api.audnex.us"

// Client represents an Audnex API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     *logger.Logger
}

// Book represents a book from the Audnex API
type Book struct {
	ASIN             string   `json:"asin"`
	Title            string   `json:"title"`
	Subtitle         string   `json:"subtitle,omitempty"`
	Authors          []Person `json:"authors,omitempty"`
	Narrators        []Person `json:"narrators,omitempty"`
	PublisherName    string   `json:"publisherName,omitempty"`
	ReleaseDate      string   `json:"releaseDate,omitempty"`
	Image            string   `json:"image,omitempty"`
	Language         string   `json:"language,omitempty"`
	RuntimeLengthMin int      `json:"runtimeLengthMin,omitempty"`
	FormatType       string   `json:"formatType,omitempty"`
}

// Person is an author or narrator credit.
type Person struct {
	Name string `json:"name"`
	ASIN string `json:"asin,omitempty"`
}

// Chapter is a single chapter marker for a book.
type Chapter struct {
	Title          string  `json:"title"`
	LengthMs       int64   `json:"lengthMs"`
	StartOffsetMs  int64   `json:"startOffsetMs"`
	StartOffsetSec float64 `json:"startOffsetSec"`
}

// BookChapters is the chapter list for a book.
type BookChapters struct {
	ASIN       string    `json:"asin"`
	Chapters   []Chapter `json:"chapters"`
	IsAccurate bool      `json:"isAccurate"`
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
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

// NewClient creates a new Audnex API client
func NewClient(timeout time.Duration, log *logger.Logger, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    DefaultBaseURL,
		userAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		logger:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetBook retrieves book details by ASIN.
func (c *Client) GetBook(ctx context.Context, asin, region string) (*Book, error) {
	if asin == "" {
		return nil, fmt.Errorf("ASIN is required")
	}

	var book Book
	if err := c.getJSON(ctx, fmt.Sprintf("/books/%s", asin), region, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// GetChapters retrieves the chapter markers for an ASIN.
func (c *Client) GetChapters(ctx context.Context, asin, region string) (*BookChapters, error) {
	if asin == "" {
		return nil, fmt.Errorf("ASIN is required")
	}

	var result BookChapters
	if err := c.getJSON(ctx, fmt.Sprintf("/books/%s/chapters", asin), region, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// getJSON performs a GET with retries and decodes the JSON response into out.
// Server errors and 429 are retried with exponential backoff; other client
// errors are terminal.
func (c *Client) getJSON(ctx context.Context, path, region string, out interface{}) error {
	params := url.Values{}
	if region != "" {
		params.Set("region", region)
	}
	params.Set("update", "1")
	requestURL := c.baseURL + path + "?" + params.Encode()

	c.logger.Debug("Making request to Audnex API", map[string]interface{}{
		"url":    requestURL,
		"region": region,
	})

	const maxRetries = 3
	const initialBackoff = 500 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := initialBackoff * time.Duration(1<<uint(attempt-1))
			c.logger.Debug("Retrying Audnex API request", map[string]interface{}{
				"attempt":    attempt + 1,
				"max":        maxRetries,
				"backoff_ms": backoff.Milliseconds(),
				"error":      lastErr.Error(),
			})

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to make request: %w", err)
			continue
		}

		retry, err := c.handleResponse(resp, out)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}

	c.logger.Error("Exhausted all retries for Audnex API request", map[string]interface{}{
		"url":         requestURL,
		"max_retries": maxRetries,
		"error":       lastErr.Error(),
	})
	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// handleResponse decodes a response, reporting whether a failure is
// retryable.
func (c *Client) handleResponse(resp *http.Response, out interface{}) (retry bool, err error) {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("failed to decode response: %w", err)
		}
		return false, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		wait := time.Duration(0)
		if after := resp.Header.Get("Retry-After"); after != "" {
			if seconds, parseErr := strconv.Atoi(after); parseErr == nil {
				wait = time.Duration(seconds) * time.Second
			}
		}
		if wait > 0 {
			time.Sleep(wait)
		}
		return true, fmt.Errorf("rate limited by Audnex API")

	case resp.StatusCode >= 500:
		c.logger.Warn("Received server error from Audnex API", map[string]interface{}{
			"status_code": resp.StatusCode,
		})
		return true, fmt.Errorf("received server error response: %d", resp.StatusCode)

	default:
		return false, fmt.Errorf("received client error response: %d", resp.StatusCode)
	}
}
