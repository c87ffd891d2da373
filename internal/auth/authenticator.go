package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/dvcrn/authclient/internal/credentials"
	"github.com/rs/zerolog"
)

// RequestAuthenticator attaches the stored access token to outgoing requests.
// It never refreshes; refresh only happens after a request has failed.
type RequestAuthenticator struct {
	store  credentials.TokenStore
	logger zerolog.Logger
}

func NewRequestAuthenticator(store credentials.TokenStore, logger *zerolog.Logger) *RequestAuthenticator {
	a := &RequestAuthenticator{store: store, logger: zerolog.Nop()}
	if logger != nil {
		a.logger = *logger
	}
	return a
}

// Authenticate sets "Authorization: Bearer <token>" when a token is stored
// and leaves the request untouched otherwise. A failing store read is
// treated as no token.
func (a *RequestAuthenticator) Authenticate(ctx context.Context, req *http.Request) error {
	token, err := a.store.GetAccessToken(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to read access token, sending request unauthenticated")
		return nil
	}
	token = bareToken(token)
	if token == "" {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+token)

	if e := a.logger.Debug(); e.Enabled() {
		e = e.Str("authorization_preview", "Bearer "+TokenPreview(token)).
			Str("method", req.Method).
			Str("url", req.URL.String())
		if exp, ok := TokenExpiry(token); ok {
			e = e.Int64("minutes_until_expiry", int64(time.Until(exp)/time.Minute))
		}
		e.Msg("Attached access token")
	}
	return nil
}

// requestToken returns the bearer token a request was sent with
func requestToken(req *http.Request) string {
	if req == nil {
		return ""
	}
	return bareToken(req.Header.Get("Authorization"))
}
