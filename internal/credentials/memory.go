package credentials

import (
	"context"
	"sync"
)

// MemoryTokenStore keeps tokens for the lifetime of the process.
type MemoryTokenStore struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

// NewMemoryTokenStore creates an empty ephemeral store
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (m *MemoryTokenStore) GetAccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accessToken, nil
}

func (m *MemoryTokenStore) SetAccessToken(ctx context.Context, token string) error {
	m.mu.Lock()
	m.accessToken = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryTokenStore) GetRefreshToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshToken, nil
}

func (m *MemoryTokenStore) SetRefreshToken(ctx context.Context, token string) error {
	m.mu.Lock()
	m.refreshToken = token
	m.mu.Unlock()
	return nil
}

// SetTokens replaces both tokens under one lock
func (m *MemoryTokenStore) SetTokens(ctx context.Context, pair TokenPair) error {
	m.mu.Lock()
	m.accessToken = pair.AccessToken
	m.refreshToken = pair.RefreshToken
	m.mu.Unlock()
	return nil
}

func (m *MemoryTokenStore) ClearTokens(ctx context.Context) error {
	return m.SetTokens(ctx, TokenPair{})
}
