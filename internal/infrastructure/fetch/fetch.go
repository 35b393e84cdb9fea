// Package fetch performs all listing and article page retrieval: identified
// client signature, per-client request pacing, and bounded retry with
// exponential backoff on transient failures.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultMinDelay = 300 * time.Millisecond
	maxBodyBytes    = 10 << 20

	// maxAttempts bounds the total tries per URL, first attempt included.
	maxAttempts = 3
	backoffBase = 2 * time.Second
	backoffCap  = 5 * time.Second

	// retryAfterCap bounds how long a Retry-After hint may stall one fetch.
	retryAfterCap = 10 * time.Second
)

// Error is the typed failure surfaced after retries are exhausted or a
// permanent HTTP status is seen. StatusCode is zero for transport errors.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client wraps an http.Client with pacing and retry. The rate limiter is
// per Client instance, so it throttles the request rate of one calling
// context without serializing concurrent fetches elsewhere.
type Client struct {
	http      *http.Client
	userAgent string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewClient builds a fetch client. minDelay is the floor between two
// requests issued through this client; zero applies a modest default.
func NewClient(httpClient *http.Client, userAgent string, minDelay time.Duration, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if minDelay <= 0 {
		minDelay = defaultMinDelay
	}
	return &Client{
		http:      httpClient,
		userAgent: userAgent,
		limiter:   rate.NewLimiter(rate.Every(minDelay), 1),
		logger:    logger,
	}
}

// Fetch GETs the URL and returns the response body. Transient failures
// (transport errors, 5xx, 408, 429) are retried with jittered exponential
// backoff up to maxAttempts; other 4xx fail immediately. A Retry-After hint
// on 429 is honored up to retryAfterCap.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(&Error{URL: url, Err: err})
		}

		b, status, header, err := c.do(ctx, url)
		if err != nil {
			c.debug("transport error", "url", url, "error", err)
			return &Error{URL: url, Err: err}
		}

		if status >= 200 && status < 300 {
			body = b
			return nil
		}

		ferr := &Error{URL: url, StatusCode: status}
		if !retryableStatus(status) {
			return backoff.Permanent(ferr)
		}

		if status == http.StatusTooManyRequests {
			if wait := parseRetryAfter(header.Get("Retry-After")); wait > 0 {
				c.debug("honoring Retry-After", "url", url, "wait", wait)
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return backoff.Permanent(&Error{URL: url, Err: ctx.Err()})
				}
			}
		}

		c.debug("retryable status", "url", url, "status", status)
		return ferr
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = backoffBase
	policy.MaxInterval = backoffCap

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, maxAttempts-1), ctx))
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, url string) ([]byte, int, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, resp.Header, fmt.Errorf("read body: %w", err)
	}

	return body, resp.StatusCode, resp.Header, nil
}

// retryableStatus mirrors the retry policy: 5xx plus 408 and 429.
func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return min(time.Duration(secs)*time.Second, retryAfterCap)
	}
	if t, err := http.ParseTime(value); err == nil {
		if wait := time.Until(t); wait > 0 {
			return min(wait, retryAfterCap)
		}
	}
	return 0
}

func (c *Client) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
