//go:build js && wasm

package env

import "github.com/syumai/workers/cloudflare"

// Get returns the value of the named Worker variable. Unset and empty
// variables are indistinguishable in Workers.
func Get(name string) (string, bool) {
	v := cloudflare.Getenv(name)
	return v, v != ""
}
