//go:build !js || !wasm

// Package env looks up configuration variables from the process environment,
// or from the Worker bindings when built for Cloudflare Workers.
package env

import "os"

// Get returns the value of the named variable and whether it was set
func Get(name string) (string, bool) {
	return os.LookupEnv(name)
}
