package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultUserAgent is sent with every catalog request
	DefaultUserAgent = "Mozilla/5.0 (compatible; furnisher/0.1)"

	// maxBodySize caps how much of a single response is read (model binaries included)
	maxBodySize = 256 << 20
)

// Client fetches catalog pages, item detail pages and model binaries.
// It only ever issues GET requests.
type Client struct {
	UserAgent  string
	httpClient *http.Client
}

// NewClient creates a new catalog client
func NewClient(timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		UserAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientWithHTTP wraps an existing http.Client, mostly for tests
func NewClientWithHTTP(hc *http.Client) *Client {
	return &Client{
		UserAgent:  DefaultUserAgent,
		httpClient: hc,
	}
}

// Get fetches url and returns the response body. Any non-200 status is an error.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}

	return body, nil
}
