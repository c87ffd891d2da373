package credentials

import (
	"github.com/dvcrn/authclient/internal/env"
)

const (
	// AccessTokenEnv seeds the access token of an env-backed store
	AccessTokenEnv = "AUTHCLIENT_ACCESS_TOKEN"
	// RefreshTokenEnv seeds the refresh token of an env-backed store
	RefreshTokenEnv = "AUTHCLIENT_REFRESH_TOKEN"
)

// NewEnvTokenStore creates an ephemeral store seeded from environment
// variables. Refreshed tokens are kept in memory only; the environment is
// never written back.
func NewEnvTokenStore() *MemoryTokenStore {
	s := NewMemoryTokenStore()
	access, _ := env.Get(AccessTokenEnv)
	refresh, _ := env.Get(RefreshTokenEnv)
	s.accessToken = access
	s.refreshToken = refresh
	return s
}
