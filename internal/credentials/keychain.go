package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultKeychainService is the generic-password service name used when none is given
const DefaultKeychainService = "authclient-tokens"

// exit status of `security find-generic-password` when the item is missing
const keychainItemNotFound = 44

type keychainTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// commandRunner runs an external command and returns its stdout
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

var errKeychainItemNotFound = errors.New("keychain item not found")

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == keychainItemNotFound {
		return nil, errKeychainItemNotFound
	}
	return out, err
}

// KeychainTokenStore persists tokens as a generic password in the macOS
// keychain. When the keychain is unavailable (other platforms, no `security`
// binary) reads return no tokens and writes are dropped.
type KeychainTokenStore struct {
	service   string
	account   string
	available bool
	run       commandRunner
	logger    *zerolog.Logger

	// writeMu serializes read-modify-write cycles on the item.
	writeMu sync.Mutex

	mu       sync.RWMutex
	cached   *keychainTokens
	cachedAt time.Time
	cacheTTL time.Duration
}

// NewKeychainTokenStore creates a keychain-backed store for the given service
func NewKeychainTokenStore(service string, logger *zerolog.Logger) *KeychainTokenStore {
	if service == "" {
		service = DefaultKeychainService
	}
	available := runtime.GOOS == "darwin"
	if available {
		if _, err := exec.LookPath("security"); err != nil {
			available = false
		}
	}
	if !available && logger != nil {
		logger.Warn().Str("service", service).Msg("Keychain unavailable, tokens will not be persisted")
	}
	return &KeychainTokenStore{
		service:   service,
		account:   "authclient",
		available: available,
		run:       execRunner,
		logger:    logger,
		cacheTTL:  30 * time.Second,
	}
}

func (k *KeychainTokenStore) GetAccessToken(ctx context.Context) (string, error) {
	t, err := k.load(ctx)
	if err != nil {
		return "", err
	}
	return t.AccessToken, nil
}

func (k *KeychainTokenStore) GetRefreshToken(ctx context.Context) (string, error) {
	t, err := k.load(ctx)
	if err != nil {
		return "", err
	}
	return t.RefreshToken, nil
}

func (k *KeychainTokenStore) SetAccessToken(ctx context.Context, token string) error {
	return k.update(ctx, func(t *keychainTokens) { t.AccessToken = token })
}

func (k *KeychainTokenStore) SetRefreshToken(ctx context.Context, token string) error {
	return k.update(ctx, func(t *keychainTokens) { t.RefreshToken = token })
}

func (k *KeychainTokenStore) SetTokens(ctx context.Context, pair TokenPair) error {
	k.writeMu.Lock()
	defer k.writeMu.Unlock()
	return k.save(ctx, &keychainTokens{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (k *KeychainTokenStore) update(ctx context.Context, mutate func(t *keychainTokens)) error {
	k.writeMu.Lock()
	defer k.writeMu.Unlock()

	t, err := k.load(ctx)
	if err != nil {
		return err
	}
	mutate(t)
	return k.save(ctx, t)
}

// ClearTokens deletes the keychain item. A missing item is not an error.
func (k *KeychainTokenStore) ClearTokens(ctx context.Context) error {
	k.writeMu.Lock()
	defer k.writeMu.Unlock()

	k.mu.Lock()
	k.cached = &keychainTokens{}
	k.cachedAt = time.Now()
	k.mu.Unlock()

	if !k.available {
		return nil
	}
	if _, err := k.run(ctx, "security", "delete-generic-password", "-s", k.service); err != nil && !isItemNotFound(err) {
		if k.logger != nil {
			k.logger.Warn().Err(err).Str("service", k.service).Msg("Failed to delete keychain item")
		}
	}
	return nil
}

func (k *KeychainTokenStore) load(ctx context.Context) (*keychainTokens, error) {
	k.mu.RLock()
	if k.cached != nil && time.Since(k.cachedAt) < k.cacheTTL {
		t := *k.cached
		k.mu.RUnlock()
		return &t, nil
	}
	k.mu.RUnlock()

	t := &keychainTokens{}
	if k.available {
		output, err := k.run(ctx, "security", "find-generic-password", "-s", k.service, "-w")
		switch {
		case isItemNotFound(err):
		case err != nil:
			return nil, fmt.Errorf("failed to retrieve tokens from keychain: %w", err)
		default:
			if err := json.Unmarshal(output, t); err != nil {
				return nil, fmt.Errorf("failed to parse JSON from keychain: %w", err)
			}
		}
	}

	k.mu.Lock()
	k.cached = t
	k.cachedAt = time.Now()
	k.mu.Unlock()
	cp := *t
	return &cp, nil
}

func (k *KeychainTokenStore) save(ctx context.Context, t *keychainTokens) error {
	if !k.available {
		return nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	// -U updates the item in place when it already exists.
	if _, err := k.run(ctx, "security", "add-generic-password", "-s", k.service, "-a", k.account, "-w", string(data), "-U"); err != nil {
		return fmt.Errorf("failed to update keychain: %w", err)
	}

	k.mu.Lock()
	cp := *t
	k.cached = &cp
	k.cachedAt = time.Now()
	k.mu.Unlock()
	return nil
}

func isItemNotFound(err error) bool {
	return errors.Is(err, errKeychainItemNotFound)
}
