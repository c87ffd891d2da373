package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dvcrn/authclient/internal/apierror"
	"github.com/dvcrn/authclient/internal/credentials"
	"github.com/dvcrn/authclient/internal/metrics"
	"github.com/dvcrn/authclient/internal/transport"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

var errIncompletePair = errors.New("refresh returned an incomplete token pair")

// refreshOutcome is the settled result of one refresh cycle. staleToken is
// the access token the cycle tried to replace.
type refreshOutcome struct {
	staleToken string
	err        error
}

// RefreshCoordinator recovers from 401 responses by running at most one
// refresh at a time. Every request rejected while a refresh is in flight
// waits for that refresh and shares its outcome.
type RefreshCoordinator struct {
	store       credentials.TokenStore
	refresh     RefreshFunc
	onAuthError AuthErrorFunc
	logger      zerolog.Logger
	metrics     *metrics.Metrics

	group      singleflight.Group
	refreshing atomic.Bool

	mu          sync.Mutex
	lastFailure *refreshOutcome
}

// CoordinatorOptions configures a RefreshCoordinator. Refresh and
// OnAuthError are both optional.
type CoordinatorOptions struct {
	Refresh     RefreshFunc
	OnAuthError AuthErrorFunc
	Logger      *zerolog.Logger
	Metrics     *metrics.Metrics
}

func NewRefreshCoordinator(store credentials.TokenStore, opts CoordinatorOptions) *RefreshCoordinator {
	c := &RefreshCoordinator{
		store:       store,
		refresh:     opts.Refresh,
		onAuthError: opts.OnAuthError,
		logger:      zerolog.Nop(),
		metrics:     opts.Metrics,
	}
	if opts.Logger != nil {
		c.logger = *opts.Logger
	}
	return c
}

// Refreshing reports whether a refresh is currently in flight.
func (c *RefreshCoordinator) Refreshing() bool {
	return c.refreshing.Load()
}

// BeforeRetry is a transport.BeforeRetryHook. Failures other than 401 pass
// through untouched; a 401 is resolved through Resolve.
func (c *RefreshCoordinator) BeforeRetry(ctx context.Context, state transport.RetryState) error {
	if !apierror.IsKind(apierror.Classify(state.Err), apierror.KindAuthentication) {
		return nil
	}
	return c.Resolve(ctx, requestToken(state.Request), state.Err)
}

// Resolve handles a 401 for a request sent with staleToken. It returns nil
// when fresh credentials are stored and the request may be retried, and
// original otherwise. A refresh failure is never returned; it clears the
// store and is reported through OnAuthError instead.
func (c *RefreshCoordinator) Resolve(ctx context.Context, staleToken string, original error) error {
	if c.refresh == nil {
		c.notifyAuthError(ctx, original)
		return original
	}

	if outcome, ok := c.joinSettled(ctx, staleToken); ok {
		c.metrics.RefreshShared()
		return outcome.result(original)
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		if outcome, ok := c.joinSettled(detached, staleToken); ok {
			return outcome, nil
		}
		// The refresh outlives any single caller's cancellation.
		return c.runRefresh(detached, staleToken, original), nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.RefreshShared()
		}
		return res.Val.(*refreshOutcome).result(original)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// joinSettled reports whether a cycle that already settled answers a 401
// for staleToken. The store holding a different non-empty access token
// means the token was already replaced, so the request can be retried. A
// request that carried the token of the last failed cycle shares that
// failure while the store is still cleared. Anything else needs a new cycle.
func (c *RefreshCoordinator) joinSettled(ctx context.Context, staleToken string) (*refreshOutcome, bool) {
	current, err := c.store.GetAccessToken(ctx)
	if err != nil {
		return nil, false
	}
	if current != "" && current != staleToken {
		return &refreshOutcome{staleToken: staleToken}, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if f := c.lastFailure; f != nil && staleToken != "" && f.staleToken == staleToken && current == "" {
		return f, true
	}
	return nil, false
}

func (c *RefreshCoordinator) runRefresh(ctx context.Context, staleToken string, original error) *refreshOutcome {
	c.refreshing.Store(true)
	defer c.refreshing.Store(false)

	c.logger.Info().
		Str("stale_token", TokenPreview(staleToken)).
		Msg("🔄 Access token rejected, refreshing...")

	err := c.callRefresh(ctx)
	outcome := &refreshOutcome{staleToken: staleToken, err: err}

	if err != nil {
		c.logger.Error().Err(err).Msg("❌ Failed to refresh access token, clearing tokens")
		if clearErr := c.store.ClearTokens(ctx); clearErr != nil {
			c.logger.Warn().Err(clearErr).Msg("Failed to clear tokens after refresh failure")
		}
		c.notifyAuthError(ctx, original)
	} else {
		c.logger.Info().Msg("✅ Access token refreshed successfully")
	}
	c.metrics.RefreshDone(err)

	c.mu.Lock()
	if err != nil {
		c.lastFailure = outcome
	} else {
		c.lastFailure = nil
	}
	c.mu.Unlock()
	return outcome
}

// callRefresh runs the refresh procedure and stores its result. A panic in
// the procedure counts as a failed refresh.
func (c *RefreshCoordinator) callRefresh(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("token refresh panicked: %v", r)
		}
	}()

	pair, err := c.refresh(ctx)
	if err != nil {
		return err
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return errIncompletePair
	}
	if err := credentials.StoreTokens(ctx, c.store, pair); err != nil {
		return fmt.Errorf("failed to store refreshed tokens: %w", err)
	}
	return nil
}

// notifyAuthError runs the OnAuthError callback. A panic in the callback is
// logged and dropped; it may run inside the shared refresh goroutine.
func (c *RefreshCoordinator) notifyAuthError(ctx context.Context, original error) {
	if c.onAuthError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("OnAuthError callback panicked")
		}
	}()
	c.onAuthError(ctx, apierror.Classify(original))
}

func (o *refreshOutcome) result(original error) error {
	if o.err != nil {
		return original
	}
	return nil
}
