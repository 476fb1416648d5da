// Package net provides HTTP client functionality with retry, timeout, rate limiting
// and circuit breaker patterns for the SDK's read and write paths (mirror node,
// transaction gateway, custodial signing APIs, multi-signature backend).
//
// Only idempotent GET requests are retried. Any other method is attempted once
// and its outcome is returned verbatim, so a mutating call is never replayed.
//
// Example usage:
//
//	client := net.NewClient(
//	    net.WithTimeout(20*time.Second),
//	    net.WithMaxRetries(5),
//	    net.WithRateLimit(50, 10),
//	)
//	resp, err := client.Get(ctx, "https://testnet.mirrornode.hedera.com/api/v1/tokens/0.0.1234")
package net

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// Default configuration values
const (
	defaultTimeout      = 30 * time.Second
	defaultMaxRetries   = 3
	defaultBackoff      = 1 * time.Second
	defaultFailureLimit = 5
	defaultResetTimeout = 60 * time.Second
)

// Client is an HTTP client with retry, timeout, and circuit breaker capabilities.
type Client struct {
	httpClient     *http.Client
	maxRetries     int
	retryBackoff   time.Duration
	limiter        *rate.Limiter
	circuitBreaker *circuitBreaker
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout (default: 30s).
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithMaxRetries sets the maximum number of retry attempts for GET requests (default: 3).
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryBackoff sets the base duration for exponential backoff (default: 1s).
func WithRetryBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryBackoff = d
	}
}

// WithRateLimit caps outgoing requests to r per second with the given burst.
func WithRateLimit(r float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultBackoff,
		circuitBreaker: &circuitBreaker{
			failureLimit: defaultFailureLimit,
			resetTimeout: defaultResetTimeout,
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// RequestOption customizes a single request.
type RequestOption func(*http.Request)

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// Response wraps an HTTP response with convenience methods.
type Response struct {
	*http.Response
}

// Bytes reads and closes the response body.
func (r *Response) Bytes() ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.NewTransportError(errors.NETWORK_ERROR, "failed to read response body", err)
	}
	return body, nil
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs an HTTP GET request with retry and circuit breaker logic.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.send(ctx, http.MethodGet, url, nil, opts)
}

// Post performs a single HTTP POST request with a JSON body.
func (c *Client) Post(ctx context.Context, url string, body []byte, opts ...RequestOption) (*Response, error) {
	return c.send(ctx, http.MethodPost, url, body, opts)
}

// Put performs a single HTTP PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, url string, body []byte, opts ...RequestOption) (*Response, error) {
	return c.send(ctx, http.MethodPut, url, body, opts)
}

// Delete performs a single HTTP DELETE request.
func (c *Client) Delete(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.send(ctx, http.MethodDelete, url, nil, opts)
}

func (c *Client) send(ctx context.Context, method, url string, body []byte, opts []RequestOption) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, fmt.Sprintf("failed to create %s request", method), err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	return c.do(req, body)
}

// do executes the HTTP request with retry logic and circuit breaker.
func (c *Client) do(req *http.Request, body []byte) (*Response, error) {
	// Check circuit breaker
	if !c.circuitBreaker.allowRequest() {
		return nil, errors.NewTransportError(
			errors.NETWORK_ERROR,
			"circuit breaker is open",
			nil,
		).WithContext("host", req.URL.Host)
	}

	retries := 0
	if req.Method == http.MethodGet {
		retries = c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(req.Context()); err != nil {
				return nil, errors.NewTransportError(errors.NETWORK_ERROR, "request cancelled", err)
			}
		}

		// Check context cancellation
		select {
		case <-req.Context().Done():
			return nil, errors.NewTransportError(
				errors.NETWORK_ERROR,
				"request cancelled",
				req.Context().Err(),
			)
		default:
		}

		// Reset body for each attempt
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			// Network error - retry
			if attempt < retries {
				c.backoff(req.Context(), attempt)
				continue
			}
			c.circuitBreaker.recordFailure()
			return nil, errors.NewTransportError(
				errors.NETWORK_ERROR,
				fmt.Sprintf("%s %s failed after %d attempts", req.Method, req.URL.Path, attempt+1),
				err,
			)
		}

		if resp.StatusCode >= 500 {
			// Server error - retry
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %s", resp.Status)
			if attempt < retries {
				c.backoff(req.Context(), attempt)
				continue
			}
			c.circuitBreaker.recordFailure()
			return nil, errors.NewTransportError(
				errors.NETWORK_ERROR,
				fmt.Sprintf("server error after %d attempts: %s", attempt+1, resp.Status),
				lastErr,
			).WithContext("status", resp.StatusCode)
		}

		// 4xx is returned to the caller, who knows what it means for its API
		c.circuitBreaker.recordSuccess()
		return &Response{resp}, nil
	}

	// Should not reach here
	return nil, errors.NewTransportError(
		errors.NETWORK_ERROR,
		"unexpected retry exhaustion",
		lastErr,
	)
}

// backoff implements exponential backoff with the formula: backoff * 2^attempt
func (c *Client) backoff(ctx context.Context, attempt int) {
	duration := c.retryBackoff * (1 << uint(attempt)) // 2^attempt
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// circuitBreaker implements a simple circuit breaker pattern.
type circuitBreaker struct {
	mu           sync.RWMutex
	failures     int
	lastFailTime time.Time
	failureLimit int
	resetTimeout time.Duration
	state        circuitState
}

type circuitState int

const (
	stateClosed circuitState = iota
	stateOpen
)

// allowRequest checks if the circuit breaker allows the request to proceed.
func (cb *circuitBreaker) allowRequest() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if cb.state == stateClosed {
		return true
	}

	// Check if reset timeout has elapsed
	return time.Since(cb.lastFailTime) > cb.resetTimeout
}

// recordSuccess records a successful request and may close the circuit.
func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.state = stateClosed
}

// recordFailure records a failed request and may open the circuit.
func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailTime = time.Now()

	if cb.failures >= cb.failureLimit {
		cb.state = stateOpen
	}
}
