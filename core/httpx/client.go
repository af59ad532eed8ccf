package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// UserAgent identifies this tool to remote services.
const UserAgent = "osm-revert (+https://github.com/osm-revert/osm-revert)"

// Client is a thin wrapper around net/http bound to a single base URL.
// It centralizes transport timeouts, default headers, and the retry policy
// shared by all outbound calls.
type Client struct {
	baseURL string
	http    *http.Client
	headers map[string]string
	retry   RetryConfig
}

// RetryConfig controls the exponential backoff applied by DoRetry.
type RetryConfig struct {
	// InitialInterval is the first wait between attempts.
	InitialInterval time.Duration
	// MaxInterval caps the wait between attempts.
	MaxInterval time.Duration
	// MaxElapsedTime bounds the total time spent retrying.
	MaxElapsedTime time.Duration
}

// DefaultRetry mirrors the retry budget used for all API calls:
// short overall budget, jittered growth, generous interval cap.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Minute,
		MaxElapsedTime:  10 * time.Second,
	}
}

// New creates a Client for the given base URL. Headers are sent with every
// request; a User-Agent is always set.
func New(baseURL string, timeout time.Duration, headers map[string]string) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	merged := map[string]string{"User-Agent": UserAgent}
	for k, v := range headers {
		merged[k] = v
	}

	// Strict transport timeouts so a dead mirror fails fast instead of hanging.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		headers: merged,
		retry:   DefaultRetry(),
	}
}

// WithRetry returns a copy of the client using the given retry configuration.
func (c *Client) WithRetry(retry RetryConfig) *Client {
	clone := *c
	clone.retry = retry
	return &clone
}

// BaseURL returns the base URL the client is bound to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Success reports whether the response status is in the 2xx range.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err returns a StatusError for non-2xx responses, nil otherwise.
func (r *Response) Err() error {
	if r.Success() {
		return nil
	}
	return &StatusError{StatusCode: r.StatusCode, Body: string(r.Body)}
}

// StatusError represents a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

type request struct {
	contentType string
	body        []byte
}

// RequestOption customizes a single request.
type RequestOption func(*request)

// WithForm sends the given values as a URL-encoded form body.
func WithForm(values url.Values) RequestOption {
	return func(r *request) {
		r.contentType = "application/x-www-form-urlencoded"
		r.body = []byte(values.Encode())
	}
}

// WithBody sends a raw body with the given content type.
func WithBody(contentType string, body []byte) RequestOption {
	return func(r *request) {
		r.contentType = contentType
		r.body = body
	}
}

// Do performs a single request attempt without retrying.
// HTTP status codes are not treated as errors; callers classify them.
func (c *Client) Do(ctx context.Context, method, path string, opts ...RequestOption) (*Response, error) {
	var r request
	for _, opt := range opts {
		opt(&r)
	}

	var bodyReader io.Reader
	if r.body != nil {
		bodyReader = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// DoRetry performs a request under the client's backoff policy.
// Transport errors and 5xx/429 responses are retried until the elapsed
// budget runs out; any other response (including 4xx) is returned
// immediately for the caller to classify.
func (c *Client) DoRetry(ctx context.Context, method, path string, opts ...RequestOption) (*Response, error) {
	operation := func() (*Response, error) {
		resp, err := c.Do(ctx, method, path, opts...)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, resp.Err()
		}
		return resp, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry.InitialInterval
	b.MaxInterval = c.retry.MaxInterval
	b.MaxElapsedTime = c.retry.MaxElapsedTime

	return backoff.RetryWithData(operation, backoff.WithContext(b, ctx))
}
