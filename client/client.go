// Package client implements the authenticated REST client for the key server.
// It is a thin boundary layer: it shapes requests, decodes responses, and
// reports failures; all caching and state transitions live in the store
// package.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds each request issued by the client.
const DefaultTimeout = 15 * time.Second

const maxResponseBytes = 1 << 20

// Config describes how to reach the key server.
type Config struct {
	// BaseURL is the root of the key server API, e.g. https://api.example.com.
	BaseURL string
	// AllowInsecureHTTP permits plain http base URLs, for local development.
	AllowInsecureHTTP bool
	// Timeout is the per-request deadline. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Transport optionally replaces the HTTP transport, e.g. with the traced
	// transport from pkg/telemetry.
	Transport http.RoundTripper
	// Logger receives request failures. Defaults to a silent logger.
	Logger *log.Logger
	// Metrics optionally records request counts and latencies.
	Metrics *Metrics
}

// Client issues authenticated requests against the key server. It is safe for
// concurrent use; the bearer token may be swapped at any time via SetToken.
type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
	logger  *log.Logger
	metrics *Metrics

	mu    sync.RWMutex
	token string
}

// New validates the configuration and returns a ready Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("client: base url is required")
	}
	if err := ensureHTTPS(base, cfg.AllowInsecureHTTP); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Client{
		base: base,
		http: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
		},
		timeout: timeout,
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

// SetToken installs the bearer token sent on subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ClearToken removes the bearer token.
func (c *Client) ClearToken() {
	c.SetToken("")
}

// Token returns the currently installed bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// do issues one JSON request and decodes the response into out when out is
// non-nil. Non-2xx responses become *APIError values carrying the server's
// message field when present.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	return c.doToken(ctx, op, method, path, body, out, c.Token())
}

// doToken is do with an explicit bearer token, for callers ending a session
// they no longer hold.
func (c *Client) doToken(ctx context.Context, op, method, path string, body, out any, token string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observe(op, 0, time.Since(start))
		if errors.Is(err, context.Canceled) {
			return err
		}
		c.logger.Printf("%s failed: %v", op, err)
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	c.metrics.observe(op, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp.StatusCode, data)
		c.logger.Printf("%s unexpected status %d: %s", op, resp.StatusCode, apiErr.Message)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func ensureHTTPS(raw string, allowInsecure bool) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("client: parse base url: %w", err)
	}

	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if allowInsecure {
			return nil
		}
		return errors.New("client: refusing plain http base url; set allow_insecure_http for local development")
	default:
		return fmt.Errorf("client: unsupported scheme %q", parsed.Scheme)
	}
}

// AllowInsecureFromEnv reports whether KEYDESK_ALLOW_INSECURE_HTTP is set to a
// truthy value.
func AllowInsecureFromEnv() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("KEYDESK_ALLOW_INSECURE_HTTP")))
	switch value {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
