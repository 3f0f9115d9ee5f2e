package password

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id derivation cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation at enrollment.
type Policy struct {
	MinLength int
	MaxLength int

	// RequireMixed demands an upper-case letter, a lower-case letter and a
	// digit or symbol.
	RequireMixed bool

	// RejectVeryWeak enables a minimal trivial-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy

	// MaxConcurrent bounds in-flight derivations per Hasher.
	MaxConcurrent int
}

func defaultThreads() int {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}
	return threads
}

// DefaultConfig returns the production baseline. Values can be overridden via env.
func DefaultConfig() Config {
	threads := defaultThreads()

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      20,
			RequireMixed:   true,
			RejectVeryWeak: false,
		},
		MaxConcurrent: runtime.NumCPU(),
	}
}

// FromEnv loads config from environment variables on top of DefaultConfig.
// A variable that is present but blank or out of range is an error.
//
// Env surface:
//   - TASKMAN_PASSWORD_MIN_LEN, TASKMAN_PASSWORD_MAX_LEN
//   - TASKMAN_PASSWORD_REQUIRE_MIXED, TASKMAN_PASSWORD_REJECT_VERY_WEAK (bool)
//   - TASKMAN_ARGON2_MEMORY_KIB, TASKMAN_ARGON2_ITERATIONS, TASKMAN_ARGON2_PARALLELISM
//   - TASKMAN_ARGON2_SALT_LEN, TASKMAN_ARGON2_KEY_LEN, TASKMAN_ARGON2_MAX_CONCURRENT
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	parallelism := uint32(cfg.Params.Parallelism)
	settings := []struct {
		key   string
		apply func(raw string) error
	}{
		{"TASKMAN_PASSWORD_MIN_LEN", intSetting(&cfg.Policy.MinLength, 1, 1024)},
		{"TASKMAN_PASSWORD_MAX_LEN", intSetting(&cfg.Policy.MaxLength, 1, 4096)},
		{"TASKMAN_PASSWORD_REQUIRE_MIXED", boolSetting(&cfg.Policy.RequireMixed)},
		{"TASKMAN_PASSWORD_REJECT_VERY_WEAK", boolSetting(&cfg.Policy.RejectVeryWeak)},
		{"TASKMAN_ARGON2_MEMORY_KIB", uintSetting(&cfg.Params.MemoryKiB, 8*1024, 1024*1024)}, // 8 MiB .. 1 GiB
		{"TASKMAN_ARGON2_ITERATIONS", uintSetting(&cfg.Params.Iterations, 1, 20)},
		{"TASKMAN_ARGON2_PARALLELISM", uintSetting(&parallelism, 1, math.MaxUint8)},
		// Salts below 128 bits are refused.
		{"TASKMAN_ARGON2_SALT_LEN", uintSetting(&cfg.Params.SaltLength, 16, 64)},
		{"TASKMAN_ARGON2_KEY_LEN", uintSetting(&cfg.Params.KeyLength, 16, 64)},
		{"TASKMAN_ARGON2_MAX_CONCURRENT", intSetting(&cfg.MaxConcurrent, 1, 1024)},
	}

	for _, s := range settings {
		raw, ok := os.LookupEnv(s.key)
		if !ok {
			continue
		}
		if err := s.apply(strings.TrimSpace(raw)); err != nil {
			return Config{}, fmt.Errorf("%s: %w", s.key, err)
		}
	}
	cfg.Params.Parallelism = uint8(parallelism) // #nosec G115 -- bounded by uintSetting.

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}
	return cfg, nil
}

func intSetting(dst *int, minVal, maxVal int) func(string) error {
	return func(raw string) error {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return errors.New("not an integer")
		}
		if n < minVal || n > maxVal {
			return fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
		}
		*dst = n
		return nil
	}
}

func uintSetting(dst *uint32, minVal, maxVal uint32) func(string) error {
	return func(raw string) error {
		u, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return errors.New("not an unsigned integer")
		}
		if u < uint64(minVal) || u > uint64(maxVal) {
			return fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
		}
		*dst = uint32(u)
		return nil
	}
}

func boolSetting(dst *bool) func(string) error {
	return func(raw string) error {
		switch strings.ToLower(raw) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		default:
			return errors.New("invalid boolean")
		}
		return nil
	}
}
