// Package reference talks to the reference-data service: catalog search and
// coordinate conversion, with a per-run memoizing resolver on top.
package reference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/fieldpipe/internal/logging"
	"github.com/JonMunkholm/fieldpipe/internal/metrics"
)

// DefaultTimeout bounds each call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

const (
	searchPath  = "/api/search/v2/query"
	convertPath = "/api/crs/converter/v2/convert"
)

// Client is an HTTP JSON client for the reference-data service.
type Client struct {
	baseURL    string
	headers    http.Header
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHeader sends a header on every call.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if value != "" {
			c.headers.Set(key, value)
		}
	}
}

// WithBearerToken sends an Authorization bearer token on every call.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    make(http.Header),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search runs a catalog query.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	var resp SearchResponse
	err := c.post(ctx, "search", searchPath, req, &resp)
	return resp, err
}

// Convert converts points between coordinate reference systems.
func (c *Client) Convert(ctx context.Context, req ConvertRequest) (ConvertResponse, error) {
	var resp ConvertResponse
	err := c.post(ctx, "convert", convertPath, req, &resp)
	return resp, err
}

func (c *Client) post(ctx context.Context, op, path string, in, out any) (err error) {
	start := time.Now()
	defer func() { metrics.RecordReferenceCall(op, start, err) }()

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	logging.FromContext(ctx).Debug("reference request", "operation", op, "url", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call reference service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reference service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", op, err)
	}
	return nil
}
