//go:build js && wasm

package credentials

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/syumai/workers/cloudflare/kv"
)

const (
	// KVBinding is the KV namespace binding name configured in wrangler.toml
	KVBinding   = "authclient_kv"
	kvTokensKey = "authclient_tokens"
)

// KVTokenStore persists tokens in Cloudflare KV. Both tokens live in a
// single JSON value, so every write replaces the pair at once.
type KVTokenStore struct {
	kvStore *kv.Namespace
}

// NewKVTokenStore opens the KV namespace bound as KVBinding
func NewKVTokenStore() (*KVTokenStore, error) {
	kvStore, err := kv.NewNamespace(KVBinding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize KV namespace: %w", err)
	}
	return &KVTokenStore{kvStore: kvStore}, nil
}

func (c *KVTokenStore) GetAccessToken(ctx context.Context) (string, error) {
	pair, err := c.load()
	if err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}

func (c *KVTokenStore) GetRefreshToken(ctx context.Context) (string, error) {
	pair, err := c.load()
	if err != nil {
		return "", err
	}
	return pair.RefreshToken, nil
}

func (c *KVTokenStore) SetAccessToken(ctx context.Context, token string) error {
	pair, err := c.load()
	if err != nil {
		return err
	}
	pair.AccessToken = token
	return c.SetTokens(ctx, pair)
}

func (c *KVTokenStore) SetRefreshToken(ctx context.Context, token string) error {
	pair, err := c.load()
	if err != nil {
		return err
	}
	pair.RefreshToken = token
	return c.SetTokens(ctx, pair)
}

func (c *KVTokenStore) SetTokens(ctx context.Context, pair TokenPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	if err := c.kvStore.PutString(kvTokensKey, string(data), nil); err != nil {
		return fmt.Errorf("failed to store tokens in KV: %w", err)
	}
	return nil
}

// ClearTokens deletes the KV entry; failures are ignored
func (c *KVTokenStore) ClearTokens(ctx context.Context) error {
	_ = c.kvStore.Delete(kvTokensKey)
	return nil
}

func (c *KVTokenStore) load() (TokenPair, error) {
	var pair TokenPair
	data, err := c.kvStore.GetString(kvTokensKey, nil)
	if err != nil {
		return pair, fmt.Errorf("failed to get tokens from KV: %w", err)
	}
	if data == "" {
		return pair, nil
	}
	if err := json.Unmarshal([]byte(data), &pair); err != nil {
		return pair, fmt.Errorf("failed to parse tokens JSON: %w", err)
	}
	return pair, nil
}
