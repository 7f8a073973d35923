package amp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrNotFound is returned when AMP does not know the requested resource.
	ErrNotFound = errors.New("amp resource not found")
	// ErrInvalidName is returned for empty appliance or package names.
	ErrInvalidName = errors.New("amp resource name must not be empty")
)

// StatusError reports a non-2xx response from AMP.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("GET %s: unexpected status %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Unwrap makes 404 responses match ErrNotFound.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

const maxErrorBody = 512

// Client queries the AMP appliance catalogue.
type Client struct {
	endpoint *url.URL
	http     *http.Client
	timeout  time.Duration
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// Option configures Client behaviour.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client, primarily for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds every request made by the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit paces outgoing requests; rps <= 0 disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the AMP instance at endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse AMP endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("AMP endpoint %q must be an absolute http(s) URL", endpoint)
	}

	c := &Client{
		endpoint: u,
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c, nil
}

// GetAppliance fetches the appliance called name.
func (c *Client) GetAppliance(ctx context.Context, name string) (*Appliance, error) {
	var appliance Appliance
	if err := c.get(ctx, "appliances", name, &appliance); err != nil {
		return nil, err
	}
	return &appliance, nil
}

// GetPackage fetches the package called name.
func (c *Client) GetPackage(ctx context.Context, name string) (*Package, error) {
	var pkg Package
	if err := c.get(ctx, "packages", name, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (c *Client) get(ctx context.Context, collection, name string, out any) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}

	target := c.endpoint.JoinPath(collection, url.PathEscape(name)).String()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for AMP rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("querying AMP", zap.String("collection", collection), zap.String("name", name))
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("AMP responded",
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, URL: target, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}
