//go:build !js || !wasm

package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	t.Setenv("AUTHCLIENT_TEST_VALUE", "abc")

	v, ok := Get("AUTHCLIENT_TEST_VALUE")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	_, ok = Get("AUTHCLIENT_TEST_DOES_NOT_EXIST")
	assert.False(t, ok)
}
