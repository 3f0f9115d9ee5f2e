// Package token loads and fingerprints the HMAC secret used to sign bearer tokens.
//
// The secret is read once at startup and handed to the token gate as an
// explicit value; nothing in this package keeps it in process-wide state.
//
// Environment:
// - TASKMAN_JWT_SECRET: raw secret bytes (trimmed), at least MinKeyBytes long.
package token
