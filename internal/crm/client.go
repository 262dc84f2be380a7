// Package crm implements the resilient HTTP client for the upstream CRM API:
// token lifecycle, uniform retry behavior, and the query shapes needed for
// lead follow-up tracking.
package crm

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
	"strconv"
	"time"
)

const (
	// RequestTimeout bounds every HTTP call to the CRM.
	RequestTimeout = 30 * time.Second

	// MaxRateLimitRetries bounds how many times a 429 is retried.
	MaxRateLimitRetries = 2

	// DefaultRetryAfter is the wait applied when a 429 carries no usable
	// Retry-After header.
	DefaultRetryAfter = 60 * time.Second
)

// Response is a completed 2xx CRM response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client executes authenticated requests against the CRM API. Retry and
// backoff live here so every higher-level fetch gets uniform resilience.
type Client struct {
	baseURL    string
	tokens     *TokenManager
	httpClient *http.Client
	syncCtx    *SyncContext

	// sleep is swapped out in tests to avoid real 429 waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a CRM client. syncCtx may be nil when no consumer needs
// error-state tracking.
func NewClient(baseURL string, tokens *TokenManager, syncCtx *SyncContext) *Client {
	return &Client{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: RequestTimeout},
		syncCtx:    syncCtx,
		sleep:      sleepContext,
	}
}

// BaseURL returns the configured CRM API base address, handed to workers
// together with a pre-fetched token.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Tokens exposes the token manager so coordinators can pre-fetch a token for
// a batch of workers.
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

// Execute issues one authenticated request, obtaining the token from the
// token manager.
func (c *Client) Execute(ctx context.Context, method, path string, params url.Values, body any) (*Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.recordError(err)
		return nil, err
	}
	return c.ExecuteWithToken(ctx, token, method, path, params, body)
}

// ExecuteWithToken issues one authenticated request with a pre-fetched token.
// Workers use this to avoid re-deriving a token per fetch; the 401 retry path
// still goes through the token manager for the replacement token.
func (c *Client) ExecuteWithToken(ctx context.Context, token, method, path string, params url.Values, body any) (*Response, error) {
	resp, err := c.execute(ctx, token, method, path, params, body, true, 0)
	if err != nil {
		c.recordError(err)
		return nil, err
	}
	c.clearError()
	return resp, nil
}

func (c *Client) execute(ctx context.Context, token, method, path string, params url.Values, body any, retryOn401 bool, rateLimitRetries int) (*Response, error) {
	req, err := c.buildRequest(ctx, token, method, path, params, body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err, fmt.Sprintf("%s %s failed", method, path))
	}
	defer func() { _ = resp.Body.Close() }()
	log.Printf("[crm] %s %s -> %d (%.2fs)", method, path, resp.StatusCode, time.Since(start).Seconds())

	// Token may have expired server-side: refresh once and retry.
	if resp.StatusCode == http.StatusUnauthorized && retryOn401 {
		log.Printf("[crm] got 401, refreshing token and retrying")
		c.tokens.Invalidate()
		fresh, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		return c.execute(ctx, fresh, method, path, params, body, false, rateLimitRetries)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &APIError{
			Kind:       KindAuth,
			Message:    "request rejected after token refresh",
			StatusCode: resp.StatusCode,
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if rateLimitRetries >= MaxRateLimitRetries {
			return nil, &APIError{
				Kind:       KindRateLimit,
				Message:    "rate limit exceeded after retries",
				StatusCode: resp.StatusCode,
			}
		}
		wait := parseRetryAfter(resp.Header.Get("Retry-After"))
		log.Printf("[crm] rate limited (429), retry %d/%d after %s", rateLimitRetries+1, MaxRateLimitRetries, wait)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, &APIError{Kind: KindTimeout, Message: "canceled while waiting out rate limit", Cause: err}
		}
		return c.execute(ctx, token, method, path, params, body, retryOn401, rateLimitRetries+1)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			Kind:       KindUnknown,
			Message:    "CRM returned an error response",
			StatusCode: resp.StatusCode,
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindConnection, Message: "failed to read response body", Cause: err}
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func (c *Client) buildRequest(ctx context.Context, token, method, path string, params url.Values, body any) (*http.Request, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &APIError{Kind: KindUnknown, Message: "failed to encode request body", Cause: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, &APIError{Kind: KindUnknown, Message: "failed to build request", Cause: err}
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) recordError(err error) {
	if c.syncCtx != nil {
		c.syncCtx.RecordError(err)
	}
}

func (c *Client) clearError() {
	if c.syncCtx != nil {
		c.syncCtx.ClearError()
	}
}

// parseRetryAfter reads a Retry-After header value in seconds. Date-form or
// garbage values fall back to the default wait.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return DefaultRetryAfter
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return DefaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

// classifyTransportError maps transport failures onto the error taxonomy.
func classifyTransportError(err error, message string) *APIError {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &APIError{Kind: KindTimeout, Message: message, Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Kind: KindTimeout, Message: message, Cause: err}
	}
	return &APIError{Kind: KindConnection, Message: message, Cause: err}
}

// sleepContext sleeps for d unless ctx is canceled first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
