package client

import (
	"net/http"
	"time"
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultRetryLimit    = 3
	DefaultMaxRetryAfter = 60 * time.Second
)

var (
	DefaultRetryMethods     = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
	DefaultRetryStatusCodes = []int{408, 413, 429, 500, 502, 503, 504}
)

// Config holds connection settings for a client.
type Config struct {
	BaseURL string `yaml:"baseUrl"`
	// APIKey is sent as X-API-Key when set.
	APIKey  string        `yaml:"apiKey"`
	Timeout time.Duration `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	// Limit is the maximum number of retries. Zero selects the default,
	// a negative value disables retries.
	Limit         int           `yaml:"limit"`
	Methods       []string      `yaml:"methods"`
	StatusCodes   []int         `yaml:"statusCodes"`
	MaxRetryAfter time.Duration `yaml:"maxRetryAfter"`
}

// WithDefaults fills unset fields with their defaults.
func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	switch {
	case c.Retry.Limit == 0:
		c.Retry.Limit = DefaultRetryLimit
	case c.Retry.Limit < 0:
		c.Retry.Limit = 0
	}
	if len(c.Retry.Methods) == 0 {
		c.Retry.Methods = DefaultRetryMethods
	}
	if len(c.Retry.StatusCodes) == 0 {
		c.Retry.StatusCodes = DefaultRetryStatusCodes
	}
	if c.Retry.MaxRetryAfter <= 0 {
		c.Retry.MaxRetryAfter = DefaultMaxRetryAfter
	}
	return c
}
