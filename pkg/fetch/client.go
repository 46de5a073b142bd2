// Package fetch implements the per-identifier fetch unit: one HTTP GET per
// attempt against a resource URL template, bounded retries with a pluggable
// backoff, and normalization of successful payloads.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 8 << 20

// DefaultHeaders are sent with every request unless overridden.
var DefaultHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
	"Accept":     "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
	"Referer":    "https://www.google.com/",
}

// Response is the raw result of one GET.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Getter performs one GET for an identifier. Non-200 statuses are returned as
// a Response, not an error; errors are transport failures only.
type Getter interface {
	Get(ctx context.Context, id int64) (*Response, error)
}

// ClientConfig holds the remote resource client configuration.
type ClientConfig struct {
	// URLTemplate contains one %d verb that receives the identifier.
	URLTemplate string

	// Headers sent with every request. Nil means DefaultHeaders.
	Headers map[string]string

	// Timeout bounds one attempt, body read included.
	Timeout time.Duration

	// MaxBodyBytes caps the body size (default: DefaultMaxBodyBytes).
	MaxBodyBytes int64
}

// Client is the HTTP implementation of Getter.
type Client struct {
	httpClient *http.Client
	config     ClientConfig
}

// NewClient validates cfg and creates a client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.Count(cfg.URLTemplate, "%d") != 1 {
		return nil, fmt.Errorf("url template must contain exactly one %%d (got %q)", cfg.URLTemplate)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.Headers == nil {
		cfg.Headers = DefaultHeaders
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	return &Client{
		httpClient: &http.Client{},
		config:     cfg,
	}, nil
}

// URL returns the resource URL for id.
func (c *Client) URL(id int64) string {
	return fmt.Sprintf(c.config.URLTemplate, id)
}

// Get performs one GET for id with the configured timeout.
func (c *Client) Get(ctx context.Context, id int64) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(id), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues("transport_error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
	}
	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return out, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(body)) > c.config.MaxBodyBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, c.config.MaxBodyBytes)
	}
	out.Body = body

	return out, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
