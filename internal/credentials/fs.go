package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

type fsAuth struct {
	Tokens struct {
		IDToken      string `json:"id_token,omitempty"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		AccountID    string `json:"account_id,omitempty"`
	} `json:"tokens"`
}

// FSTokenStore persists tokens in a JSON file. A missing file reads as
// "no tokens"; the file and its parent directory are created on first write.
type FSTokenStore struct {
	Path string
	mu   sync.Mutex
}

func NewFSTokenStore(path string) *FSTokenStore {
	return &FSTokenStore{Path: path}
}

func (f *FSTokenStore) GetAccessToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, err := f.read()
	if err != nil {
		return "", err
	}
	return a.Tokens.AccessToken, nil
}

func (f *FSTokenStore) GetRefreshToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, err := f.read()
	if err != nil {
		return "", err
	}
	return a.Tokens.RefreshToken, nil
}

func (f *FSTokenStore) SetAccessToken(ctx context.Context, token string) error {
	return f.update(func(a *fsAuth) { a.Tokens.AccessToken = token })
}

func (f *FSTokenStore) SetRefreshToken(ctx context.Context, token string) error {
	return f.update(func(a *fsAuth) { a.Tokens.RefreshToken = token })
}

// SetTokens writes both tokens with a single file replace
func (f *FSTokenStore) SetTokens(ctx context.Context, pair TokenPair) error {
	return f.update(func(a *fsAuth) {
		a.Tokens.AccessToken = pair.AccessToken
		a.Tokens.RefreshToken = pair.RefreshToken
	})
}

// ClearTokens empties both tokens. Other fields of the file are preserved;
// nothing is written when the file does not exist.
func (f *FSTokenStore) ClearTokens(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !FileExists(f.Path) {
		return nil
	}
	a, err := f.read()
	if err != nil {
		// Unparseable content is replaced rather than kept.
		a = &fsAuth{}
	}
	a.Tokens.AccessToken = ""
	a.Tokens.RefreshToken = ""
	return f.write(a)
}

func (f *FSTokenStore) update(mutate func(a *fsAuth)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, err := f.read()
	if err != nil {
		return err
	}
	mutate(a)
	return f.write(a)
}

func (f *FSTokenStore) read() (*fsAuth, error) {
	var a fsAuth
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return &a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	if len(b) == 0 {
		return &a, nil
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &a, nil
}

func (f *FSTokenStore) write(a *fsAuth) error {
	if err := EnsureParentDir(f.Path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".tokens-*")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp token file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}
