package auth

import (
	"context"

	"github.com/dvcrn/authclient/internal/credentials"
)

// RefreshFunc obtains a new token pair, typically by presenting the stored
// refresh token to an authorization server.
type RefreshFunc func(ctx context.Context) (credentials.TokenPair, error)

// AuthErrorFunc is notified when authentication cannot be recovered, so the
// caller can log out or redirect. err is the classified 401.
type AuthErrorFunc func(ctx context.Context, err error)

// TokenRefreshResponse represents the OAuth token refresh API response
type TokenRefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// TokenRefreshRequest represents the OAuth token refresh API request
type TokenRefreshRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
	Scope        string `json:"scope,omitempty"`
}
