package password

import (
	"context"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

// minSaltBytes is the smallest salt Derive accepts (128 bits).
const minSaltBytes = 16

// NewSalt returns SaltLength bytes from crypto/rand.
func (c Config) NewSalt() ([]byte, error) {
	n := c.Params.SaltLength
	if n < minSaltBytes {
		n = minSaltBytes
	}
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	return salt, nil
}

// Derive computes the Argon2id key for password under salt with the
// configured parameters. The same (password, salt, params) always yields the
// same key.
func (c Config) Derive(password string, salt []byte) ([]byte, error) {
	return derive(c.Params, password, salt)
}

// DeriveWith derives with stored parameters, typically those recorded at
// enrollment. Parameters beyond twice the configured cost are refused with
// ErrInvalidParams.
func (c Config) DeriveWith(p Argon2idParams, password string, salt []byte) ([]byte, error) {
	if !withinBounds(p, c.Params) {
		return nil, ErrInvalidParams
	}
	return derive(p, password, salt)
}

func derive(p Argon2idParams, password string, salt []byte) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if len(salt) < minSaltBytes {
		return nil, ErrInvalidSalt
	}

	return argon2.IDKey(
		[]byte(password),
		salt,
		p.Iterations,
		p.MemoryKiB,
		p.Parallelism,
		p.KeyLength,
	), nil
}

// Hasher runs derivations behind a weighted semaphore so a burst of logins
// cannot allocate MemoryKiB per request without bound.
type Hasher struct {
	cfg Config
	sem *semaphore.Weighted
}

// NewHasher constructs a Hasher. MaxConcurrent <= 0 falls back to 1.
func NewHasher(cfg Config) *Hasher {
	n := cfg.MaxConcurrent
	if n <= 0 {
		n = 1
	}
	return &Hasher{cfg: cfg, sem: semaphore.NewWeighted(int64(n))}
}

// Config returns the hasher configuration.
func (h *Hasher) Config() Config { return h.cfg }

// NewSalt returns a fresh per-identity salt.
func (h *Hasher) NewSalt() ([]byte, error) { return h.cfg.NewSalt() }

// Derive waits for a derivation slot (honouring ctx) and derives the key.
func (h *Hasher) Derive(ctx context.Context, password string, salt []byte) ([]byte, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer h.sem.Release(1)

	return h.cfg.Derive(password, salt)
}

// DeriveWith is Derive under explicit parameters.
func (h *Hasher) DeriveWith(ctx context.Context, p Argon2idParams, password string, salt []byte) ([]byte, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer h.sem.Release(1)

	return h.cfg.DeriveWith(p, password, salt)
}
