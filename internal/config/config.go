// Package config loads client settings from an optional YAML file and the
// environment. Environment variables override the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dvcrn/authclient/internal/client"
	"github.com/dvcrn/authclient/internal/credentials"
	"github.com/dvcrn/authclient/internal/env"
	"gopkg.in/yaml.v3"
)

// Token store kinds
const (
	StoreMemory   = "memory"
	StoreEnv      = "env"
	StoreFile     = "file"
	StoreKeychain = "keychain"
	StoreRedis    = "redis"
	StoreKV       = "kv"
)

type TokenStoreConfig struct {
	Kind            string `yaml:"kind"`
	Path            string `yaml:"path"`
	KeychainService string `yaml:"keychainService"`
	RedisAddr       string `yaml:"redisAddr"`
	RedisPrefix     string `yaml:"redisPrefix"`
}

type OAuthConfig struct {
	TokenURL string `yaml:"tokenUrl"`
	ClientID string `yaml:"clientId"`
	Scope    string `yaml:"scope"`
}

type Config struct {
	Client     client.Config    `yaml:"client"`
	TokenStore TokenStoreConfig `yaml:"tokenStore"`
	OAuth      OAuthConfig      `yaml:"oauth"`
}

// Load reads path (skipped when empty or missing), applies environment
// overrides and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.Client = cfg.Client.WithDefaults()
	if cfg.TokenStore.Kind == "" {
		cfg.TokenStore.Kind = StoreFile
	}
	cfg.TokenStore.Kind = strings.ToLower(cfg.TokenStore.Kind)
	if cfg.TokenStore.Kind == StoreFile && cfg.TokenStore.Path == "" {
		cfg.TokenStore.Path = credentials.DefaultTokenPath()
	}
	if cfg.TokenStore.Kind == StoreRedis && cfg.TokenStore.RedisAddr == "" {
		cfg.TokenStore.RedisAddr = "localhost:6379"
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString(&c.Client.BaseURL, "AUTHCLIENT_BASE_URL")
	setString(&c.Client.APIKey, "AUTHCLIENT_API_KEY")
	setString(&c.TokenStore.Kind, "AUTHCLIENT_TOKEN_STORE")
	setString(&c.TokenStore.Path, "AUTHCLIENT_TOKEN_FILE")
	setString(&c.TokenStore.KeychainService, "AUTHCLIENT_KEYCHAIN_SERVICE")
	setString(&c.TokenStore.RedisAddr, "AUTHCLIENT_REDIS_ADDR")
	setString(&c.TokenStore.RedisPrefix, "AUTHCLIENT_REDIS_PREFIX")
	setString(&c.OAuth.TokenURL, "AUTHCLIENT_OAUTH_TOKEN_URL")
	setString(&c.OAuth.ClientID, "AUTHCLIENT_OAUTH_CLIENT_ID")
	setString(&c.OAuth.Scope, "AUTHCLIENT_OAUTH_SCOPE")

	if v, ok := env.Get("AUTHCLIENT_TIMEOUT"); ok && v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("invalid AUTHCLIENT_TIMEOUT: %w", err)
		}
		c.Client.Timeout = d
	}
	if v, ok := env.Get("AUTHCLIENT_RETRY_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AUTHCLIENT_RETRY_LIMIT: %w", err)
		}
		c.Client.Retry.Limit = n
	}
	return nil
}

// Validate checks the token store selection. The base URL is checked when
// a client is built, since token commands work without one.
func (c *Config) Validate() error {
	switch c.TokenStore.Kind {
	case StoreMemory, StoreEnv, StoreFile, StoreKeychain, StoreRedis, StoreKV:
	default:
		return fmt.Errorf("unknown token store %q", c.TokenStore.Kind)
	}
	return nil
}

func setString(dst *string, name string) {
	if v, ok := env.Get(name); ok && v != "" {
		*dst = v
	}
}

// parseTimeout accepts a Go duration ("15s") or integer milliseconds.
func parseTimeout(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}
