//go:build js && wasm

package app

import (
	"fmt"

	"github.com/dvcrn/authclient/internal/config"
	"github.com/dvcrn/authclient/internal/credentials"
	"github.com/rs/zerolog"
)

// OpenTokenStore creates the store named by cfg. The returned closer may be nil.
func OpenTokenStore(cfg config.TokenStoreConfig, log *zerolog.Logger) (credentials.TokenStore, func() error, error) {
	switch cfg.Kind {
	case config.StoreKV:
		log.Info().Msg("📦 Using Cloudflare KV token store")
		store, err := credentials.NewKVTokenStore()
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case config.StoreMemory:
		return credentials.NewMemoryTokenStore(), nil, nil
	case config.StoreEnv:
		return credentials.NewEnvTokenStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("token store %q is not available in workers", cfg.Kind)
	}
}
