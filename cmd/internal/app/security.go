package app

import (
	"errors"
	"fmt"

	"taskman/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy and returns the
// signing key. Startup fails rather than running with a weak or missing secret.
func ValidateSecurityConfig(cfg Config) ([]byte, error) {
	key, err := token.ParseKey(cfg.JWTSecret, token.MinKeyBytes)
	switch {
	case err == nil:
	case errors.Is(err, token.ErrKeyMissing):
		return nil, fmt.Errorf("security policy: %s is not set", token.EnvKey)
	case errors.Is(err, token.ErrKeyTooShort):
		return nil, fmt.Errorf("security policy: %s is too short (min %d bytes)", token.EnvKey, token.MinKeyBytes)
	default:
		return nil, err
	}

	if cfg.JWTTTL <= 0 {
		return nil, errors.New("security policy: TASKMAN_JWT_TTL must be positive")
	}
	if cfg.JWTClockSkew >= cfg.JWTTTL {
		return nil, errors.New("security policy: TASKMAN_JWT_CLOCK_SKEW must be shorter than TASKMAN_JWT_TTL")
	}
	return key, nil
}
