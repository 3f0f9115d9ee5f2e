package password

import (
	"errors"
	"fmt"
	"strings"
)

// argon2Version is argon2.Version (0x13).
const argon2Version = 19

// ErrInvalidParams reports a stored parameter string that is malformed or
// asks for far more work than this process is configured for.
var ErrInvalidParams = errors.New("invalid argon2id parameters")

// Encode renders the cost parameters in PHC form:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>
//
// Salt and key are stored separately, so their lengths are not encoded.
func (p Argon2idParams) Encode() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d",
		argon2Version, p.MemoryKiB, p.Iterations, p.Parallelism)
}

// ParseParams decodes the output of Encode. SaltLength and KeyLength are left
// zero; callers fill them from the stored salt and key.
func ParseParams(encoded string) (Argon2idParams, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2idParams{}, ErrInvalidParams
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return Argon2idParams{}, ErrInvalidParams
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Argon2idParams{}, ErrInvalidParams
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Argon2idParams{}, ErrInvalidParams
	}
	if parts[3] != fmt.Sprintf("m=%d,t=%d,p=%d", mem, it, par) {
		return Argon2idParams{}, ErrInvalidParams
	}

	return Argon2idParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par), // #nosec G115 -- checked above.
	}, nil
}

// withinBounds accepts parameters from older or cheaper settings but refuses
// anything more than twice as costly as the configured limits.
func withinBounds(got, limits Argon2idParams) bool {
	switch {
	case got.MemoryKiB == 0 || got.Iterations == 0 || got.Parallelism == 0:
		return false
	case uint64(got.MemoryKiB) > 2*uint64(limits.MemoryKiB):
		return false
	case uint64(got.Iterations) > 2*uint64(limits.Iterations):
		return false
	case uint16(got.Parallelism) > 2*uint16(limits.Parallelism):
		return false
	case got.KeyLength < 16 || got.KeyLength > 128:
		return false
	}
	return true
}
