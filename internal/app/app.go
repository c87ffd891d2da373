// Package app wires configuration, token storage and the OAuth refresher
// into a ready-to-use client.
package app

import (
	"context"
	"errors"

	"github.com/dvcrn/authclient/internal/auth"
	"github.com/dvcrn/authclient/internal/client"
	"github.com/dvcrn/authclient/internal/config"
	"github.com/dvcrn/authclient/internal/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const defaultKeychainService = "authclient"

// App holds the composed client and whatever must be closed with it.
type App struct {
	Config *config.Config
	Store  credentials.TokenStore
	Client *client.Client

	closers []func() error
}

// Options lets callers override collaborators, mainly in tests.
type Options struct {
	Registerer  prometheus.Registerer
	OnAuthError auth.AuthErrorFunc
}

// New builds the token store named by cfg and a client that refreshes
// through the configured OAuth endpoint, if any.
func New(cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg}

	store, closer, err := OpenTokenStore(cfg.TokenStore, &log)
	if err != nil {
		return nil, err
	}
	a.Store = store
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	onAuthError := opts.OnAuthError
	if onAuthError == nil {
		onAuthError = func(ctx context.Context, err error) {
			log.Warn().Err(err).Msg("⚠️  Authentication failed, stored tokens were cleared")
		}
	}

	var refresh auth.RefreshFunc
	if cfg.OAuth.TokenURL != "" {
		refresh = auth.NewOAuthRefresher(auth.OAuthConfig{
			TokenURL: cfg.OAuth.TokenURL,
			ClientID: cfg.OAuth.ClientID,
			Scope:    cfg.OAuth.Scope,
		}, store)
		log.Info().Str("token_url", cfg.OAuth.TokenURL).Msg("🔑 OAuth token refresh enabled")
	}

	c, err := client.New(cfg.Client, client.Options{
		TokenStore:     store,
		OnTokenRefresh: refresh,
		OnAuthError:    onAuthError,
		Logger:         &log,
		Registerer:     opts.Registerer,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Client = c
	return a, nil
}

// Close releases resources held by the token store.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
