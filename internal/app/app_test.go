package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dvcrn/authclient/internal/apierror"
	"github.com/dvcrn/authclient/internal/auth"
	"github.com/dvcrn/authclient/internal/client"
	"github.com/dvcrn/authclient/internal/config"
	"github.com/dvcrn/authclient/internal/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string, store config.TokenStoreConfig) *config.Config {
	return &config.Config{
		Client:     client.Config{BaseURL: baseURL}.WithDefaults(),
		TokenStore: store,
	}
}

func newTestApp(t *testing.T, cfg *config.Config, opts Options) *App {
	t.Helper()
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	a, err := New(cfg, zerolog.Nop(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewSelectsTokenStore(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name  string
		store config.TokenStoreConfig
		want  any
	}{
		{"memory", config.TokenStoreConfig{Kind: config.StoreMemory}, &credentials.MemoryTokenStore{}},
		{"env", config.TokenStoreConfig{Kind: config.StoreEnv}, &credentials.MemoryTokenStore{}},
		{"file", config.TokenStoreConfig{Kind: config.StoreFile, Path: filepath.Join(t.TempDir(), "tokens.json")}, &credentials.FSTokenStore{}},
		{"keychain", config.TokenStoreConfig{Kind: config.StoreKeychain}, &credentials.KeychainTokenStore{}},
		{"redis", config.TokenStoreConfig{Kind: config.StoreRedis, RedisAddr: mr.Addr()}, &credentials.RedisTokenStore{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(t, testConfig("https://api.example.com", tt.store), Options{})
			assert.IsType(t, tt.want, a.Store)
			assert.Same(t, a.Store, a.Client.TokenStore())
		})
	}
}

func TestNewRejectsWorkersOnlyStore(t *testing.T) {
	_, err := New(testConfig("https://api.example.com", config.TokenStoreConfig{Kind: config.StoreKV}), zerolog.Nop(), Options{Registerer: prometheus.NewRegistry()})
	assert.ErrorContains(t, err, "not available")
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTestApp(t, testConfig("https://api.example.com", config.TokenStoreConfig{
		Kind:        config.StoreRedis,
		RedisAddr:   mr.Addr(),
		RedisPrefix: "tenant",
	}), Options{})

	ctx := context.Background()
	require.NoError(t, credentials.StoreTokens(ctx, a.Store, credentials.TokenPair{AccessToken: "a", RefreshToken: "r"}))

	got, err := mr.Get("tenant:access_token")
	require.NoError(t, err)
	assert.Equal(t, "a", got)
}

func TestOAuthRefreshEndToEnd(t *testing.T) {
	var grants atomic.Int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req auth.TokenRefreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "refresh_token", req.GrantType)
		assert.Equal(t, "stored-refresh", req.RefreshToken)
		assert.Equal(t, "cli", req.ClientID)
		grants.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(auth.TokenRefreshResponse{AccessToken: "fresh-access"})
	}))
	t.Cleanup(tokenServer.Close)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh-access" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Token expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"me"}`))
	}))
	t.Cleanup(api.Close)

	cfg := testConfig(api.URL, config.TokenStoreConfig{Kind: config.StoreMemory})
	cfg.OAuth = config.OAuthConfig{TokenURL: tokenServer.URL, ClientID: "cli"}
	a := newTestApp(t, cfg, Options{})

	ctx := context.Background()
	require.NoError(t, credentials.StoreTokens(ctx, a.Store, credentials.TokenPair{AccessToken: "stale", RefreshToken: "stored-refresh"}))

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, a.Client.Get(ctx, "/me", &out))
	assert.Equal(t, "me", out.ID)
	assert.EqualValues(t, 1, grants.Load())

	refresh, err := a.Store.GetRefreshToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stored-refresh", refresh)
}

func TestOAuthRefreshFailureNotifies(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	t.Cleanup(tokenServer.Close)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(api.Close)

	var notified atomic.Int32
	cfg := testConfig(api.URL, config.TokenStoreConfig{Kind: config.StoreMemory})
	cfg.OAuth = config.OAuthConfig{TokenURL: tokenServer.URL}
	a := newTestApp(t, cfg, Options{OnAuthError: func(ctx context.Context, err error) {
		assert.True(t, apierror.IsKind(err, apierror.KindAuthentication))
		notified.Add(1)
	}})

	ctx := context.Background()
	require.NoError(t, credentials.StoreTokens(ctx, a.Store, credentials.TokenPair{AccessToken: "stale", RefreshToken: "revoked"}))

	err := a.Client.Get(ctx, "/me", nil)
	assert.True(t, apierror.IsKind(err, apierror.KindAuthentication))
	assert.EqualValues(t, 1, notified.Load())

	access, err := a.Store.GetAccessToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, access)
}
