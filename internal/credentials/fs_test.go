package credentials

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSTokenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	runStoreScenario(t, NewFSTokenStore(path))
}

func TestFSTokenStoreFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deeply", "nested", "tokens.json")
	s := NewFSTokenStore(path)
	require.NoError(t, s.SetTokens(context.Background(), TokenPair{AccessToken: "a", RefreshToken: "r"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, dirInfo.IsDir())
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())
}

func TestFSTokenStorePreservesOtherFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	seed := `{"tokens":{"id_token":"id","access_token":"old","refresh_token":"old-r","account_id":"acct"}}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0600))

	s := NewFSTokenStore(path)
	require.NoError(t, s.SetTokens(context.Background(), TokenPair{AccessToken: "new", RefreshToken: "new-r"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var a fsAuth
	require.NoError(t, json.Unmarshal(data, &a))
	assert.Equal(t, "new", a.Tokens.AccessToken)
	assert.Equal(t, "new-r", a.Tokens.RefreshToken)
	assert.Equal(t, "id", a.Tokens.IDToken)
	assert.Equal(t, "acct", a.Tokens.AccountID)
}

func TestFSTokenStoreClearWithoutFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "tokens.json")
	s := NewFSTokenStore(path)

	require.NoError(t, s.ClearTokens(context.Background()))
	assert.False(t, FileExists(path))
}

func TestFSTokenStoreClearCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))
	s := NewFSTokenStore(path)

	_, err := s.GetAccessToken(context.Background())
	assert.Error(t, err)

	require.NoError(t, s.ClearTokens(context.Background()))
	token, err := s.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
}
