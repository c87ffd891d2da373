package credentials

import "context"

// TokenPair is the result of a successful refresh. Both fields are always
// set together.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenStore holds the current access and refresh token. An empty string
// means no token is stored.
type TokenStore interface {
	GetAccessToken(ctx context.Context) (string, error)
	SetAccessToken(ctx context.Context, token string) error
	GetRefreshToken(ctx context.Context) (string, error)
	SetRefreshToken(ctx context.Context, token string) error
	// ClearTokens drops both tokens. It does not fail when the backing
	// medium is unavailable.
	ClearTokens(ctx context.Context) error
}

// PairWriter is implemented by stores that can replace both tokens in a
// single write.
type PairWriter interface {
	SetTokens(ctx context.Context, pair TokenPair) error
}

// StoreTokens writes pair into store, atomically when the store supports it
// and access-then-refresh otherwise.
func StoreTokens(ctx context.Context, store TokenStore, pair TokenPair) error {
	if pw, ok := store.(PairWriter); ok {
		return pw.SetTokens(ctx, pair)
	}
	if err := store.SetAccessToken(ctx, pair.AccessToken); err != nil {
		return err
	}
	return store.SetRefreshToken(ctx, pair.RefreshToken)
}
