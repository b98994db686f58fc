// Package catalog talks to the remote marketplace catalog that knows the
// tags and experiences of installed apps.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/0xADE/ade-appsd/internal/appindex"
)

const (
	// InfoPath is appended to the base URL for batch lookups
	InfoPath = "/apps/info"

	DefaultBatchSize = 100
	DefaultRPS       = 2.0
)

// ErrBaseURLRequired indicates New was called without a catalog location
var ErrBaseURLRequired = errors.New("catalog base URL is required")

// StatusError is returned for non-200 catalog responses
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog request failed (status %d): %s", e.Code, e.Body)
}

type (
	infoRequest struct {
		GUIDs []string `json:"guids"`
	}
	infoResponse struct {
		Response map[string]appindex.CatalogEntry `json:"response"`
	}
)

// Client implements appindex.Catalog over HTTP
type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	batchSize int
	logger    *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithRateLimit sets requests per second; the burst is one request
func WithRateLimit(rps float64) Option {
	return func(cl *Client) {
		if rps > 0 {
			cl.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithBatchSize splits large lookups into requests of at most n guids
func WithBatchSize(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.batchSize = n
		}
	}
}

// WithLogger sets the client logger
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// New creates a catalog client for baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c := &Client{
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(DefaultRPS), 1),
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AppsInfo looks up guids in batches and merges the answers. Guids the
// catalog does not know are simply missing from the result.
func (c *Client) AppsInfo(ctx context.Context, guids []string) (map[string]appindex.CatalogEntry, error) {
	out := make(map[string]appindex.CatalogEntry, len(guids))
	for start := 0; start < len(guids); start += c.batchSize {
		end := min(start+c.batchSize, len(guids))
		batch, err := c.fetch(ctx, guids[start:end])
		if err != nil {
			return nil, err
		}
		for k, v := range batch {
			out[k] = v
		}
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, guids []string) (map[string]appindex.CatalogEntry, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(infoRequest{GUIDs: guids})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+InfoPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var result infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	c.logger.Debug("catalog batch answered", "requested", len(guids), "entries", len(result.Response))
	return result.Response, nil
}
