// Package gate issues signed bearer tokens and maps presented tokens back to
// live identities.
//
// Tokens are HS256 JWTs whose subject is the username. The signing secret is
// passed in through Config at construction; verification checks signature,
// algorithm, issuer and expiry, and Validate then requires the subject to
// resolve to an existing identity.
package gate
