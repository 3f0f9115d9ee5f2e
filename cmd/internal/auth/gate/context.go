package gate

import (
	"context"

	"taskman/cmd/identity"
)

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying the resolved identity.
func WithIdentity(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity attached by WithIdentity.
func IdentityFrom(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(identity.Identity)
	return id, ok
}
