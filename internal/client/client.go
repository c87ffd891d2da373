// Package client builds authenticated API clients: bearer tokens are
// attached from a token store, failures come back as *apierror.Error, and
// expired tokens are refreshed once for all concurrent callers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/dvcrn/authclient/internal/apierror"
	"github.com/dvcrn/authclient/internal/auth"
	"github.com/dvcrn/authclient/internal/credentials"
	"github.com/dvcrn/authclient/internal/metrics"
	"github.com/dvcrn/authclient/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Options carries the optional auth wiring and collaborators of a client.
type Options struct {
	TokenStore     credentials.TokenStore
	OnTokenRefresh auth.RefreshFunc
	OnAuthError    auth.AuthErrorFunc

	HTTPClient transport.HTTPClient
	Logger     *zerolog.Logger
	Registerer prometheus.Registerer
}

// Client is the handle resource modules use to talk to the API.
type Client struct {
	transport   *transport.Client
	tokens      credentials.TokenStore
	coordinator *auth.RefreshCoordinator
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// New composes a client from cfg. The request authenticator is installed
// when opts.TokenStore is set; the refresh coordinator only when
// opts.OnTokenRefresh is set as well.
func New(cfg Config, opts Options) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("client: base URL is required")
	}
	cfg = cfg.WithDefaults()

	c := &Client{
		tokens:  opts.TokenStore,
		metrics: metrics.New(opts.Registerer),
		logger:  zerolog.Nop(),
	}
	if opts.Logger != nil {
		c.logger = *opts.Logger
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		headers.Set("X-API-Key", cfg.APIKey)
	}

	var hooks transport.Hooks
	if opts.TokenStore != nil {
		authenticator := auth.NewRequestAuthenticator(opts.TokenStore, opts.Logger)
		hooks.BeforeRequest = append(hooks.BeforeRequest, authenticator.Authenticate)
	}
	if opts.TokenStore != nil && opts.OnTokenRefresh != nil {
		c.coordinator = auth.NewRefreshCoordinator(opts.TokenStore, auth.CoordinatorOptions{
			Refresh:     opts.OnTokenRefresh,
			OnAuthError: opts.OnAuthError,
			Logger:      opts.Logger,
			Metrics:     c.metrics,
		})
		hooks.BeforeRetry = append(hooks.BeforeRetry, c.coordinator.BeforeRetry)
	}
	hooks.BeforeError = append(hooks.BeforeError, c.classify)

	c.transport = transport.New(transport.Options{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Retry: transport.RetryPolicy{
			Limit:         cfg.Retry.Limit,
			Methods:       slices.Clone(cfg.Retry.Methods),
			StatusCodes:   slices.Clone(cfg.Retry.StatusCodes),
			MaxRetryAfter: cfg.Retry.MaxRetryAfter,
			AuthRetry:     c.coordinator != nil,
		},
		Headers:    headers,
		Hooks:      hooks,
		HTTPClient: opts.HTTPClient,
		Logger:     opts.Logger,
	})
	return c, nil
}

// classify is the before-error hook: every failure leaves as *apierror.Error.
func (c *Client) classify(err error) error {
	classified := apierror.Classify(err)
	c.metrics.RequestFailed(classified.Name())
	c.logger.Debug().
		Str("kind", classified.Name()).
		Int("status_code", classified.StatusCode).
		Str("message", classified.Message).
		Msg("Request failed")
	return classified
}

// TokenStore returns the store the client authenticates with, or nil.
func (c *Client) TokenStore() credentials.TokenStore {
	return c.tokens
}

// Refreshing reports whether a token refresh is in flight.
func (c *Client) Refreshing() bool {
	return c.coordinator != nil && c.coordinator.Refreshing()
}

// Do sends a request with body encoded as JSON (nil for none) and decodes a
// JSON response into out (nil to discard). Errors are *apierror.Error.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &apierror.Error{Kind: apierror.KindUnknown, Message: "failed to encode request body", Cause: err}
		}
	}

	resp, err := c.transport.Do(ctx, method, path, payload, nil)
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &apierror.Error{Kind: apierror.KindUnknown, Message: fmt.Sprintf("failed to decode response body: %v", err), StatusCode: resp.StatusCode, Cause: err}
	}
	return nil
}

// Raw sends a request and returns the response unparsed.
func (c *Client) Raw(ctx context.Context, method, path string, body []byte, header http.Header) (*transport.Response, error) {
	return c.transport.Do(ctx, method, path, body, header)
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}
