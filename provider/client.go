package provider

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

	"github.com/cenkalti/backoff/v4"
)

// MaxResponseBytes bounds upstream discovery responses.
const MaxResponseBytes = 4 << 20

var (
	// ErrUpstreamUnavailable indicates a network failure, 429 or 5xx. Retryable.
	ErrUpstreamUnavailable = errors.New("provider: upstream unavailable")

	// ErrUpstreamStatus indicates a non-retryable upstream status.
	ErrUpstreamStatus = errors.New("provider: unexpected upstream status")

	// ErrNotFound indicates the upstream answered 404.
	ErrNotFound = errors.New("provider: not found")

	// ErrBadResponse indicates an undecodable or oversized upstream body.
	ErrBadResponse = errors.New("provider: bad upstream response")
)

// Client is a small JSON-over-HTTP client for upstream marketplaces.
type Client struct {
	// BaseURL is prepended to every request path.
	BaseURL string

	// HTTP is the client to use. If nil, http.DefaultClient is used.
	HTTP *http.Client

	// APIKey is sent in APIKeyHeader when both are set.
	APIKey       string
	APIKeyHeader string

	// MaxRetries is the number of retries after the first attempt for
	// retryable failures (default: 0).
	MaxRetries int

	// RetryDelay is the delay between attempts (default: 100ms).
	RetryDelay time.Duration

	// UserAgent is sent on every request when set.
	UserAgent string
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) backOff(ctx context.Context) backoff.BackOff {
	delay := c.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	retries := c.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(retries)),
		ctx,
	)
}

// GetJSON issues GET BaseURL+path?query and decodes the response into out.
// Only ErrUpstreamUnavailable failures are retried.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := strings.TrimRight(c.BaseURL, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	op := func() error {
		err := c.getOnce(ctx, target, out)
		if err != nil && !errors.Is(err, ErrUpstreamUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, c.backOff(ctx))
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func (c *Client) getOnce(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.APIKey != "" && c.APIKeyHeader != "" {
		req.Header.Set(c.APIKeyHeader, c.APIKey)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: status %d", ErrUpstreamStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if len(body) > MaxResponseBytes {
		return fmt.Errorf("%w: body exceeds %d bytes", ErrBadResponse, MaxResponseBytes)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}
