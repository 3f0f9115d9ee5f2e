package identity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"taskman/cmd/identity/ids"
	"taskman/cmd/security/password"
)

// Credentials enrolls identities and verifies submitted passwords.
// It holds no mutable state; concurrent calls only meet at the Store.
type Credentials struct {
	store  Store
	hasher *password.Hasher
	now    func() time.Time
}

// CredentialsOption configures Credentials.
type CredentialsOption func(*Credentials)

// WithClock overrides the clock used for CreatedAt and ID timestamps.
func WithClock(now func() time.Time) CredentialsOption {
	return func(c *Credentials) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCredentials constructs a credential store over st.
func NewCredentials(st Store, hasher *password.Hasher, opts ...CredentialsOption) (*Credentials, error) {
	if st == nil {
		return nil, errors.New("identity: nil store")
	}
	if hasher == nil {
		return nil, errors.New("identity: nil hasher")
	}
	c := &Credentials{
		store:  st,
		hasher: hasher,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Enroll creates an identity with a fresh salt and the derived password key.
//
// Duplicate usernames are detected only through the store's uniqueness
// violation, never by a prior lookup, so concurrent enrollments of the same
// name resolve to exactly one success and ConflictError for the rest.
func (c *Credentials) Enroll(ctx context.Context, username, plaintext string) (Identity, error) {
	const op = "identity.Enroll"

	username = NormalizeUsername(username)
	if !validUsername(username) {
		return Identity{}, invalid(op, "username is required")
	}
	if plaintext == "" {
		return Identity{}, invalid(op, "password is required")
	}
	if err := c.hasher.Config().Validate(plaintext); err != nil {
		return Identity{}, invalid(op, err.Error())
	}

	salt, err := c.hasher.NewSalt()
	if err != nil {
		return Identity{}, err
	}

	key, err := c.hasher.Derive(ctx, plaintext, salt)
	if err != nil {
		return Identity{}, err
	}

	now := c.now()
	id, err := ids.New(now)
	if err != nil {
		return Identity{}, err
	}

	rec := Identity{
		ID:           id,
		Username:     username,
		PasswordHash: key,
		Salt:         salt,
		KDFParams:    c.hasher.Config().Params.Encode(),
		CreatedAt:    now,
	}

	if err := c.store.Insert(ctx, rec); err != nil {
		var ce ConflictError
		if errors.As(err, &ce) {
			return Identity{}, ConflictError{Op: op, Field: ce.Field}
		}
		return Identity{}, storageErr(op, err)
	}

	return rec, nil
}

// Verify re-derives the key for plaintext with the stored salt and the
// parameters recorded at enrollment, then compares it to the stored key. It returns (username, true) on a match and
// ("", false) both for an unknown username and for a wrong password.
// Only backend failures produce an error.
//
// The comparison is a plain byte comparison and an unknown username skips
// the derivation entirely.
func (c *Credentials) Verify(ctx context.Context, username, plaintext string) (string, bool, error) {
	const op = "identity.Verify"

	username = NormalizeUsername(username)
	if username == "" || plaintext == "" {
		return "", false, nil
	}

	rec, err := c.store.FindByUsername(ctx, username)
	if err != nil {
		if IsNotFound(err) {
			return "", false, nil
		}
		return "", false, storageErr(op, err)
	}

	params, err := password.ParseParams(rec.KDFParams)
	if err != nil {
		return "", false, storageErr(op, fmt.Errorf("kdf params: %w", err))
	}
	params.SaltLength = uint32(len(rec.Salt))
	params.KeyLength = uint32(len(rec.PasswordHash))

	key, err := c.hasher.DeriveWith(ctx, params, plaintext, rec.Salt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", false, ctxErr
		}
		// A row whose salt or parameters cannot be used is a storage fault, not a mismatch.
		return "", false, storageErr(op, err)
	}

	if !bytes.Equal(key, rec.PasswordHash) {
		return "", false, nil
	}
	return rec.Username, true, nil
}

// Lookup resolves username to its identity. Missing rows are a NotFoundError;
// everything else is a StorageError.
func (c *Credentials) Lookup(ctx context.Context, username string) (Identity, error) {
	const op = "identity.Lookup"

	username = NormalizeUsername(username)
	if username == "" {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}

	rec, err := c.store.FindByUsername(ctx, username)
	if err != nil {
		if IsNotFound(err) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		return Identity{}, storageErr(op, err)
	}
	return rec, nil
}
