// Package password derives password verifiers with Argon2id.
//
// A verifier is the pair (salt, key): the salt is generated once per identity
// and stored next to the derived key, so verification re-derives with the
// stored salt and compares the two keys.
//
// It also owns the password policy applied at enrollment and a bounded
// Hasher so memory-hard derivations cannot starve request handling.
package password
