package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dvcrn/authclient/internal/credentials"
	"github.com/dvcrn/authclient/internal/transport"
)

// ErrNoRefreshToken is returned by the OAuth refresher when the store holds
// no refresh token.
var ErrNoRefreshToken = errors.New("no refresh token stored")

// OAuthConfig describes the token endpoint used for refresh_token grants.
type OAuthConfig struct {
	TokenURL string
	ClientID string
	Scope    string
	// HTTPClient must not be the authenticated client, or a refresh could
	// trigger another refresh.
	HTTPClient transport.HTTPClient
}

// NewOAuthRefresher returns a RefreshFunc performing a refresh_token grant
// with the refresh token currently in store.
func NewOAuthRefresher(cfg OAuthConfig, store credentials.TokenStore) RefreshFunc {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = transport.NewHTTPClient()
	}
	return func(ctx context.Context) (credentials.TokenPair, error) {
		refreshToken, err := store.GetRefreshToken(ctx)
		if err != nil {
			return credentials.TokenPair{}, fmt.Errorf("failed to read refresh token: %w", err)
		}
		if refreshToken == "" {
			return credentials.TokenPair{}, ErrNoRefreshToken
		}

		resp, err := RefreshToken(ctx, cfg, refreshToken)
		if err != nil {
			return credentials.TokenPair{}, err
		}

		pair := credentials.TokenPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
		// Servers that do not rotate refresh tokens omit it from the response.
		if pair.RefreshToken == "" {
			pair.RefreshToken = refreshToken
		}
		return pair, nil
	}
}

// RefreshToken performs an OAuth token refresh and returns new credentials
func RefreshToken(ctx context.Context, cfg OAuthConfig, refreshToken string) (*TokenRefreshResponse, error) {
	request := TokenRefreshRequest{
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
		ClientID:     cfg.ClientID,
		Scope:        cfg.Scope,
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := cfg.HTTPClient
	if client == nil {
		client = transport.NewHTTPClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("token refresh failed with status %d: %s", resp.StatusCode, string(errorBody))
	}

	var tokenResp TokenRefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("refresh response did not contain an access token")
	}

	return &tokenResp, nil
}
