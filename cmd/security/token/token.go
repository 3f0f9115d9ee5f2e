package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"strings"
)

var (
	ErrKeyMissing  = errors.New("token signing key missing")
	ErrKeyTooShort = errors.New("token signing key too short")
)

const (
	// EnvKey is the env var name for the signing secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	EnvKey = "TASKMAN_JWT_SECRET"

	// MinKeyBytes is the minimum secret size for HMAC-SHA256.
	MinKeyBytes = 32
)

// KeyFromEnv returns the configured signing key bytes (trimmed), enforcing a minimum byte length.
// Missing/blank -> ErrKeyMissing. Too short -> ErrKeyTooShort.
func KeyFromEnv(minBytes int) ([]byte, error) {
	return ParseKey(os.Getenv(EnvKey), minBytes)
}

// ParseKey applies the same policy as KeyFromEnv to an explicit value.
// Length is measured in bytes, not runes, because the key is used as raw bytes.
func ParseKey(raw string, minBytes int) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrKeyTooShort
	}
	return b, nil
}

// Fingerprint returns a short SHA-256 hex prefix of key, safe to log for
// telling deployments apart without revealing the secret.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])[:12]
}
