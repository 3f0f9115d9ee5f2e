package identity

import (
	"context"
	"time"
)

// Identity is the canonical security principal.
// PasswordHash is the Argon2id key derived from the password and Salt;
// neither is ever rendered in API responses or logs. KDFParams records the
// cost parameters the key was derived with, in PHC form.
type Identity struct {
	ID           string
	Username     string
	PasswordHash []byte
	Salt         []byte
	KDFParams    string
	CreatedAt    time.Time
}

// Store is the identity persistence boundary.
//
// Contract:
//   - FindByUsername returns a NotFoundError when no row matches.
//   - Insert writes the whole record in one statement and returns a
//     ConflictError{Field: "username"} on a uniqueness violation. Any other
//     failure is returned unclassified and treated as a storage fault.
type Store interface {
	FindByUsername(ctx context.Context, username string) (Identity, error)
	Insert(ctx context.Context, id Identity) error
}
