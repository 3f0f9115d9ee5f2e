package gate

import "errors"

// ErrInvalidToken is returned for any token that fails signature, algorithm,
// issuer or expiry checks. The cause is wrapped for logs only.
var ErrInvalidToken = errors.New("invalid token")
