package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisTokenStore persists tokens in Redis so several processes can share
// one session.
type RedisTokenStore struct {
	rdb    redis.UniversalClient
	prefix string
	logger *zerolog.Logger
}

// NewRedisTokenStore creates a store keeping its keys under prefix
func NewRedisTokenStore(rdb redis.UniversalClient, prefix string, logger *zerolog.Logger) *RedisTokenStore {
	if prefix == "" {
		prefix = "authclient"
	}
	return &RedisTokenStore{rdb: rdb, prefix: prefix, logger: logger}
}

func (r *RedisTokenStore) accessKey() string  { return r.prefix + ":access_token" }
func (r *RedisTokenStore) refreshKey() string { return r.prefix + ":refresh_token" }

func (r *RedisTokenStore) GetAccessToken(ctx context.Context) (string, error) {
	return r.get(ctx, r.accessKey())
}

func (r *RedisTokenStore) GetRefreshToken(ctx context.Context) (string, error) {
	return r.get(ctx, r.refreshKey())
}

func (r *RedisTokenStore) SetAccessToken(ctx context.Context, token string) error {
	return r.set(ctx, r.accessKey(), token)
}

func (r *RedisTokenStore) SetRefreshToken(ctx context.Context, token string) error {
	return r.set(ctx, r.refreshKey(), token)
}

// SetTokens writes both keys in one MULTI/EXEC
func (r *RedisTokenStore) SetTokens(ctx context.Context, pair TokenPair) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.accessKey(), pair.AccessToken, 0)
		pipe.Set(ctx, r.refreshKey(), pair.RefreshToken, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store tokens in redis: %w", err)
	}
	return nil
}

// ClearTokens deletes both keys. Redis failures are logged, not returned.
func (r *RedisTokenStore) ClearTokens(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.accessKey(), r.refreshKey()).Err(); err != nil && r.logger != nil {
		r.logger.Warn().Err(err).Str("prefix", r.prefix).Msg("Failed to clear tokens in redis")
	}
	return nil
}

func (r *RedisTokenStore) get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s from redis: %w", key, err)
	}
	return v, nil
}

func (r *RedisTokenStore) set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s to redis: %w", key, err)
	}
	return nil
}
