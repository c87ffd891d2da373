// Package transport sends HTTP requests with a retry policy and lifecycle
// hooks (before-request, before-retry, before-error).
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPClient is an interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient creates the default HTTP client. Timeouts are applied per
// attempt through the request context, so the client itself has none.
func NewHTTPClient() HTTPClient {
	return &http.Client{}
}

// BeforeRequestHook may mutate the outgoing request. An error aborts the call.
type BeforeRequestHook func(ctx context.Context, req *http.Request) error

// RetryState describes the failed attempt a retry is about to replace.
type RetryState struct {
	// Request is the request that failed, with the headers it was sent with.
	Request    *http.Request
	Err        error
	RetryCount int
}

// BeforeRetryHook runs before each retry. Returning an error cancels the
// retry and the error is surfaced instead.
type BeforeRetryHook func(ctx context.Context, state RetryState) error

// BeforeErrorHook transforms the error returned to the caller.
type BeforeErrorHook func(err error) error

type Hooks struct {
	BeforeRequest []BeforeRequestHook
	BeforeRetry   []BeforeRetryHook
	BeforeError   []BeforeErrorHook
}

// RetryPolicy controls which failures are retried.
type RetryPolicy struct {
	// Limit is the maximum number of retries. Zero disables retries.
	Limit       int
	Methods     []string
	StatusCodes []int
	// MaxRetryAfter caps an honoured Retry-After. Longer waits are not retried.
	MaxRetryAfter time.Duration
	// AuthRetry allows one extra retry of a 401 per call, outside Limit,
	// once the BeforeRetry hooks have run without error.
	AuthRetry bool
}

// statuses whose Retry-After header is honoured
var retryAfterStatusCodes = []int{http.StatusRequestEntityTooLarge, http.StatusTooManyRequests, http.StatusServiceUnavailable}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Retry      RetryPolicy
	Headers    http.Header
	Hooks      Hooks
	HTTPClient HTTPClient
	Logger     *zerolog.Logger
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

type Client struct {
	baseURL    string
	timeout    time.Duration
	retry      RetryPolicy
	headers    http.Header
	hooks      Hooks
	httpClient HTTPClient
	logger     zerolog.Logger

	newBackOff func() backoff.BackOff
	sleep      func(ctx context.Context, d time.Duration) error
}

func New(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		timeout:    opts.Timeout,
		retry:      opts.Retry,
		headers:    opts.Headers.Clone(),
		hooks:      opts.Hooks,
		httpClient: opts.HTTPClient,
		logger:     zerolog.Nop(),
		newBackOff: defaultBackOff,
		sleep:      sleepContext,
	}
	if c.httpClient == nil {
		c.httpClient = NewHTTPClient()
	}
	if c.headers == nil {
		c.headers = http.Header{}
	}
	if opts.Logger != nil {
		c.logger = *opts.Logger
	}
	return c
}

// defaultBackOff waits 300ms, 600ms, 1.2s, ... between retries.
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 300 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// URL resolves path against the base URL.
func (c *Client) URL(path string) string {
	if c.baseURL == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Do sends the request, retrying according to the policy. Every returned
// error has passed through the BeforeError hooks.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, header http.Header) (*Response, error) {
	target := c.URL(path)
	bo := c.newBackOff()
	retries := 0
	authRetried := false

	for attempt := 0; ; attempt++ {
		req, resp, sent, err := c.attempt(ctx, method, target, body, header)
		if err == nil {
			return resp, nil
		}
		if !sent {
			return nil, c.fail(err)
		}

		delay, retry := c.retryDecision(ctx, method, err, retries, authRetried, bo)
		if !retry {
			return nil, c.fail(err)
		}
		if isUnauthorized(err) && c.retry.AuthRetry {
			authRetried = true
		} else {
			retries++
		}

		c.logger.Debug().
			Str("method", method).
			Str("url", target).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("Retrying request")

		if err := c.sleep(ctx, delay); err != nil {
			return nil, c.fail(err)
		}
		state := RetryState{Request: req, Err: err, RetryCount: attempt + 1}
		for _, hook := range c.hooks.BeforeRetry {
			if hookErr := hook(ctx, state); hookErr != nil {
				return nil, c.fail(hookErr)
			}
		}
	}
}

// attempt performs one round trip. sent is false when the request never left
// (construction or hook failure), which is never retried.
func (c *Client) attempt(ctx context.Context, method, target string, body []byte, header http.Header) (req *http.Request, resp *Response, sent bool, err error) {
	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err = http.NewRequestWithContext(attemptCtx, method, target, reader)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range c.headers {
		req.Header[key] = slices.Clone(values)
	}
	for key, values := range header {
		req.Header[key] = slices.Clone(values)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	for _, hook := range c.hooks.BeforeRequest {
		if err := hook(ctx, req); err != nil {
			return req, nil, false, err
		}
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return req, nil, true, ctx.Err()
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return req, nil, true, &TimeoutError{Method: method, URL: target, Timeout: c.timeout}
		}
		return req, nil, true, fmt.Errorf("failed to send request: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return req, nil, true, &TimeoutError{Method: method, URL: target, Timeout: c.timeout}
		}
		return req, nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return req, nil, true, &HTTPError{
			Method:     method,
			URL:        target,
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header,
			Body:       data,
		}
	}

	return req, &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}, true, nil
}

func (c *Client) retryDecision(ctx context.Context, method string, err error, retries int, authRetried bool, bo backoff.BackOff) (time.Duration, bool) {
	if ctx.Err() != nil {
		return 0, false
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return 0, false
	}

	if isUnauthorized(err) && c.retry.AuthRetry {
		return 0, !authRetried && len(c.hooks.BeforeRetry) > 0
	}

	if retries >= c.retry.Limit || !c.methodRetryable(method) {
		return 0, false
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return c.nextBackOff(bo)
	}
	if !slices.Contains(c.retry.StatusCodes, httpErr.StatusCode) {
		return 0, false
	}
	if slices.Contains(retryAfterStatusCodes, httpErr.StatusCode) {
		if wait, ok := retryAfter(httpErr.Header, time.Now()); ok {
			if c.retry.MaxRetryAfter > 0 && wait > c.retry.MaxRetryAfter {
				return 0, false
			}
			return wait, true
		}
	}
	return c.nextBackOff(bo)
}

func (c *Client) nextBackOff(bo backoff.BackOff) (time.Duration, bool) {
	d := bo.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	return d, true
}

func (c *Client) methodRetryable(method string) bool {
	for _, m := range c.retry.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func (c *Client) fail(err error) error {
	for _, hook := range c.hooks.BeforeError {
		err = hook(err)
	}
	return err
}

func isUnauthorized(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP-date.
func retryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(raw); err == nil {
		wait := at.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}
	return 0, false
}
