//go:build !js || !wasm

package app

import (
	"fmt"

	"github.com/dvcrn/authclient/internal/config"
	"github.com/dvcrn/authclient/internal/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// OpenTokenStore creates the store named by cfg. The returned closer may be nil.
func OpenTokenStore(cfg config.TokenStoreConfig, log *zerolog.Logger) (credentials.TokenStore, func() error, error) {
	switch cfg.Kind {
	case config.StoreMemory:
		log.Info().Msg("🧠 Using in-memory token store")
		return credentials.NewMemoryTokenStore(), nil, nil
	case config.StoreEnv:
		log.Info().Msg("📝 Using environment token store")
		return credentials.NewEnvTokenStore(), nil, nil
	case config.StoreFile, "":
		path := cfg.Path
		if path == "" {
			path = credentials.DefaultTokenPath()
		}
		log.Info().Str("path", path).Msg("📄 Using filesystem token store")
		return credentials.NewFSTokenStore(path), nil, nil
	case config.StoreKeychain:
		service := cfg.KeychainService
		if service == "" {
			service = defaultKeychainService
		}
		log.Info().Str("service", service).Msg("🔑 Using keychain token store")
		return credentials.NewKeychainTokenStore(service, log), nil, nil
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		log.Info().Str("addr", cfg.RedisAddr).Str("prefix", cfg.RedisPrefix).Msg("🗄️  Using redis token store")
		return credentials.NewRedisTokenStore(rdb, cfg.RedisPrefix, log), rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("token store %q is not available on this platform", cfg.Kind)
	}
}
