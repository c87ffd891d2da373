package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvcrn/authclient/internal/apierror"
	"github.com/dvcrn/authclient/internal/credentials"
	"github.com/dvcrn/authclient/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unauthorized() *transport.HTTPError {
	return &transport.HTTPError{Method: http.MethodGet, URL: "https://api.example.com/me", StatusCode: http.StatusUnauthorized, Header: http.Header{}}
}

func seededStore(t *testing.T, access, refresh string) *credentials.MemoryTokenStore {
	t.Helper()
	s := credentials.NewMemoryTokenStore()
	require.NoError(t, s.SetTokens(context.Background(), credentials.TokenPair{AccessToken: access, RefreshToken: refresh}))
	return s
}

func TestResolveSingleFlightSuccess(t *testing.T) {
	store := seededStore(t, "old", "refresh-old")
	release := make(chan struct{})
	var calls atomic.Int32

	c := NewRefreshCoordinator(store, CoordinatorOptions{
		Refresh: func(ctx context.Context) (credentials.TokenPair, error) {
			calls.Add(1)
			<-release
			return credentials.TokenPair{AccessToken: "new", RefreshToken: "refresh-new"}, nil
		},
	})

	const n = 16
	original := unauthorized()
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.Resolve(context.Background(), "old", original)
		}()
	}

	require.Eventually(t, c.Refreshing, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for err := range results {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, c.Refreshing())

	access, _ := store.GetAccessToken(context.Background())
	refresh, _ := store.GetRefreshToken(context.Background())
	assert.Equal(t, "new", access)
	assert.Equal(t, "refresh-new", refresh)
}

func TestResolveSingleFlightFailure(t *testing.T) {
	store := seededStore(t, "old", "refresh-old")
	release := make(chan struct{})
	var calls, authErrors atomic.Int32
	refreshErr := errors.New("refresh token revoked")

	c := NewRefreshCoordinator(store, CoordinatorOptions{
		Refresh: func(ctx context.Context) (credentials.TokenPair, error) {
			calls.Add(1)
			<-release
			return credentials.TokenPair{}, refreshErr
		},
		OnAuthError: func(ctx context.Context, err error) {
			authErrors.Add(1)
			assert.True(t, apierror.IsKind(err, apierror.KindAuthentication))
			assert.NotErrorIs(t, err, refreshErr)
		},
	})

	const n = 16
	original := unauthorized()
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.Resolve(context.Background(), "old", original)
		}()
	}

	require.Eventually(t, c.Refreshing, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for err := range results {
		assert.Same(t, original, err)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), authErrors.Load())

	access, _ := store.GetAccessToken(context.Background())
	refresh, _ := store.GetRefreshToken(context.Background())
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}

func TestResolveAcceptsNewCycleAfterSuccess(t *testing.T) {
	store := seededStore(t, "t0", "r0")
	var calls atomic.Int32
	c := NewRefreshCoordinator(store, CoordinatorOptions{
		Refresh: func(ctx context.Context) (credentials.TokenPair, error) {
			n := calls.Add(1)
			if n == 1 {
				return credentials.TokenPair{AccessToken: "t1", RefreshToken: "r1"}, nil
			}
			return credentials.TokenPair{AccessToken: "t2", RefreshToken: "r2"}, nil
		},
	})

	require.NoError(t, c.Resolve(context.Background(), "t0", unauthorized()))
	// A late 401 for the replaced token is retried with the stored one.
	require.NoError(t, c.Resolve(context.Background(), "t0", unauthorized()))
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, c.Resolve(context.Background(), "t1", unauthorized()))
	assert.Equal(t, int32(2), calls.Load())

	access, _ := store.GetAccessToken(context.Background())
	assert.Equal(t, "t2", access)
}

func TestResolveStartsNewCycleAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, "", "r1")
	var calls, authErrors atomic.Int32
	c := NewRefreshCoordinator(store, CoordinatorOptions{
		Refresh: func(ctx context.Context) (credentials.TokenPair, error) {
			if calls.Add(1) < 3 {
				return credentials.TokenPair{}, errors.New("invalid_grant")
			}
			return credentials.TokenPair{AccessToken: "t1", RefreshToken: "r2"}, nil
		},
		OnAuthError: func(ctx context.Context, err error) { authErrors.Add(1) },
	})

	original := unauthorized()
	assert.Same(t, original, c.Resolve(ctx, "", original))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), authErrors.Load())

	require.NoError(t, store.SetRefreshToken(ctx, "r1-again"))
	assert.Same(t, original, c.Resolve(ctx, "", original))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(2), authErrors.Load())

	require.NoError(t, store.SetRefreshToken(ctx, "r1-third"))
	require.NoError(t, c.Resolve(ctx, "", original))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(2), authErrors.Load())

	access, _ := store.GetAccessToken(ctx)
	assert.Equal(t, "t1", access)
}

func TestResolveLateRequestSharesFailedCycle(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, "old", "r")
	var calls, authErrors atomic.Int32
	c := NewRefreshCoordinator(store, CoordinatorOptions{
		Refresh: func(ctx context.Context) (credentials.TokenPair, error) {
			calls.Add(1)
			return credentials.TokenPair{}, errors.New("invalid_grant")
		},
		OnAuthError: func(ctx context.Context, err error) { authErrors.Add(1) },
	})

	original := unauthorized()
	assert.Same(t, original, c.Resolve(ctx, "old", original))
	// A request that was still carrying the rejected token settles with it.
	assert.Same(t, original, c.Resolve(ctx, "old", original))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), authErrors.Load())

	// New credentials that are rejected again start a new cycle.
	require.NoError(t, store.SetTokens(ctx, credentials.TokenPair{AccessToken: "other", RefreshToken: "r2"}))
	assert.Same(t, original, c.Resolve(ctx, "other", original))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(2), authErrors.Load())
}

func TestResolveRefreshReturningSameToken(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, "t0", "r0")
	var calls atomic.Int32
	c := NewRefreshCoordinator(store, CoordinatorOptions{
		Refresh: func(ctx context.Context) (credentials.TokenPair, error) {
			calls.Add(1)
			return credentials.TokenPair{AccessToken: "t0", RefreshToken: "r1"}, nil
		},
	})

	require.NoError(t, c.Resolve(ctx, "t0", unauthorized()))
	require.NoError(t, c.Resolve(ctx, "t0", unauthorized()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestResolveRecoversPanickingAuthErrorCallback(t *testing.T) {
	onAuthError := func(ctx context.Context, err error) { panic("logout failed") }

	t.Run("after failed refresh", func(t *testing.T) {
		c := NewRefreshCoordinator(seededStore(t, "old", "r"), CoordinatorOptions{
			Refresh: func(ctx context.Context) (credentials.TokenPair, error) {
				return credentials.TokenPair{}, errors.New("invalid_grant")
			},
			OnAuthError: onAuthError,
		})
		original := unauthorized()
		assert.Same(t, original, c.Resolve(context.Background(), "old", original))
		assert.False(t, c.Refreshing())
	})

	t.Run("without refresh", func(t *testing.T) {
		c := NewRefreshCoordinator(seededStore(t, "old", "r"), CoordinatorOptions{OnAuthError: onAuthError})
		original := unauthorized()
		assert.Same(t, original, c.Resolve(context.Background(), "old", original))
	})
}

func TestResolveWithoutRefresh(t *testing.T) {
	store := seededStore(t, "old", "r")
	var got error
	c := NewRefreshCoordinator(store, CoordinatorOptions{
		OnAuthError: func(ctx context.Context, err error) { got = err },
	})

	original := unauthorized()
	err := c.Resolve(context.Background(), "old", original)
	assert.Same(t, original, err)
	require.NotNil(t, got)
	assert.ErrorIs(t, got, apierror.ErrAuthentication)

	// Tokens are left alone when no refresh was attempted.
	access, _ := store.GetAccessToken(context.Background())
	assert.Equal(t, "old", access)
}

func TestResolveRejectsIncompletePair(t *testing.T) {
	store := seededStore(t, "old", "r")
	c := NewRefreshCoordinator(store, CoordinatorOptions{
		Refresh: func(ctx context.Context) (credentials.TokenPair, error) {
			return credentials.TokenPair{AccessToken: "new"}, nil
		},
	})

	original := unauthorized()
	assert.Same(t, original, c.Resolve(context.Background(), "old", original))
	access, _ := store.GetAccessToken(context.Background())
	assert.Empty(t, access)
}

func TestResolveRecoversPanickingRefresh(t *testing.T) {
	store := seededStore(t, "old", "r")
	c := NewRefreshCoordinator(store, CoordinatorOptions{
		Refresh: func(ctx context.Context) (credentials.TokenPair, error) {
			panic("boom")
		},
	})

	original := unauthorized()
	assert.Same(t, original, c.Resolve(context.Background(), "old", original))
	assert.False(t, c.Refreshing())
}

func TestResolveWaiterCancellation(t *testing.T) {
	store := seededStore(t, "old", "r")
	release := make(chan struct{})
	c := NewRefreshCoordinator(store, CoordinatorOptions{
		Refresh: func(ctx context.Context) (credentials.TokenPair, error) {
			<-release
			return credentials.TokenPair{AccessToken: "new", RefreshToken: "r2"}, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Resolve(ctx, "old", unauthorized()) }()

	require.Eventually(t, c.Refreshing, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// The shared refresh still completes for everyone else.
	close(release)
	require.Eventually(t, func() bool { return !c.Refreshing() }, time.Second, time.Millisecond)
	access, _ := store.GetAccessToken(context.Background())
	assert.Equal(t, "new", access)
}

func TestBeforeRetryIgnoresOtherFailures(t *testing.T) {
	var calls atomic.Int32
	c := NewRefreshCoordinator(credentials.NewMemoryTokenStore(), CoordinatorOptions{
		Refresh: func(ctx context.Context) (credentials.TokenPair, error) {
			calls.Add(1)
			return credentials.TokenPair{AccessToken: "a", RefreshToken: "r"}, nil
		},
	})

	err := c.BeforeRetry(context.Background(), transport.RetryState{
		Err: &transport.HTTPError{StatusCode: http.StatusServiceUnavailable, Header: http.Header{}},
	})
	assert.NoError(t, err)
	assert.Zero(t, calls.Load())
}

func TestBeforeRetryUsesRequestToken(t *testing.T) {
	store := seededStore(t, "current", "r")
	var calls atomic.Int32
	c := NewRefreshCoordinator(store, CoordinatorOptions{
		Refresh: func(ctx context.Context) (credentials.TokenPair, error) {
			calls.Add(1)
			return credentials.TokenPair{AccessToken: "next", RefreshToken: "r2"}, nil
		},
	})

	req, _ := http.NewRequest(http.MethodGet, "https://api.example.com/me", nil)
	req.Header.Set("Authorization", "Bearer current")
	state := transport.RetryState{Request: req, Err: unauthorized(), RetryCount: 1}

	require.NoError(t, c.BeforeRetry(context.Background(), state))
	require.NoError(t, c.BeforeRetry(context.Background(), state))
	assert.Equal(t, int32(1), calls.Load())
}
