// Package identity is the credential store: it owns identity records and the
// salted-hash enrollment and verification flow.
//
// Persistence is reached through Store. Backends translate driver failures
// into the typed errors of this package at their boundary, so callers never
// see a raw driver code.
package identity
