package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/utafrali/storefront-search/pkg/logger"
)

// Doer is satisfied by Client and CircuitBreakerClient.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config holds HTTP client configuration
type Config struct {
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"15s"`
	MaxRetries      int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryWaitMin    time.Duration `env:"RETRY_WAIT_MIN" envDefault:"250ms"`
	RetryWaitMax    time.Duration `env:"RETRY_WAIT_MAX" envDefault:"5s"`
	MaxConnsPerHost int           `env:"MAX_CONNS_PER_HOST" envDefault:"32"`
	UserAgent       string        `env:"USER_AGENT" envDefault:"storefront-search"`
}

// DefaultConfig returns defaults for calls to upstream catalog services.
func DefaultConfig() Config {
	return Config{
		Timeout:         15 * time.Second,
		MaxRetries:      3,
		RetryWaitMin:    250 * time.Millisecond,
		RetryWaitMax:    5 * time.Second,
		MaxConnsPerHost: 32,
		UserAgent:       "storefront-search",
	}
}

// Client wraps http.Client with retry logic and context propagation.
type Client struct {
	httpClient *http.Client
	config     Config
}

// New creates a new HTTP client with retry and connection pooling
func New(cfg Config) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		config: cfg,
	}
}

// Do executes req, retrying network errors and 5xx responses (except 501)
// with capped exponential backoff. Requests with a body are only retried when
// req.GetBody is set. The correlation and tenant ids found in ctx are
// forwarded as headers.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		attemptReq, err := c.prepare(ctx, req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(attemptReq)
		if err != nil {
			lastErr = err
			if isRetryableError(err) && attempt < c.config.MaxRetries && canRetry(req) {
				continue
			}
			return nil, fmt.Errorf("http request failed after %d attempts: %w", attempt+1, err)
		}

		if resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented &&
			attempt < c.config.MaxRetries && canRetry(req) {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("upstream returned status %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("http request failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// Get performs HTTP GET request with retry
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}
	return c.Do(ctx, req)
}

// Post performs HTTP POST request with retry
func (c *Client) Post(ctx context.Context, url string, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("create POST request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(ctx, req)
}

func (c *Client) prepare(ctx context.Context, req *http.Request, attempt int) (*http.Request, error) {
	out := req.Clone(ctx)
	if attempt > 0 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		out.Body = body
	}
	if c.config.UserAgent != "" && out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", c.config.UserAgent)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" && out.Header.Get("X-Correlation-ID") == "" {
		out.Header.Set("X-Correlation-ID", id)
	}
	if tenant := logger.TenantIDFromContext(ctx); tenant != "" && out.Header.Get("X-Tenant-ID") == "" {
		out.Header.Set("X-Tenant-ID", tenant)
	}
	return out, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	wait := c.config.RetryWaitMin * time.Duration(1<<uint(attempt-1))
	if c.config.RetryWaitMax > 0 && wait > c.config.RetryWaitMax {
		wait = c.config.RetryWaitMax
	}
	return wait
}

func canRetry(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// isRetryableError reports whether err is a transient network failure.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
