package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	_, err := ParseKey("   ", MinKeyBytes)
	assert.ErrorIs(t, err, ErrKeyMissing)

	_, err = ParseKey("short", MinKeyBytes)
	assert.ErrorIs(t, err, ErrKeyTooShort)

	raw := strings.Repeat("k", MinKeyBytes)
	key, err := ParseKey(" "+raw+" ", MinKeyBytes)
	require.NoError(t, err)
	assert.Equal(t, []byte(raw), key)
}

func TestKeyFromEnv(t *testing.T) {
	t.Setenv(EnvKey, "")
	_, err := KeyFromEnv(MinKeyBytes)
	assert.ErrorIs(t, err, ErrKeyMissing)

	t.Setenv(EnvKey, strings.Repeat("s", 40))
	key, err := KeyFromEnv(MinKeyBytes)
	require.NoError(t, err)
	assert.Len(t, key, 40)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("secret-a"))
	b := Fingerprint([]byte("secret-b"))

	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Fingerprint([]byte("secret-a")))
}
