package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskman/cmd/identity"
	"taskman/cmd/security/token"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultTTL    = time.Hour
	DefaultIssuer = "taskman"
	maxTTL        = 7 * 24 * time.Hour
)

// Config controls token issuance and verification.
type Config struct {
	Secret []byte
	Issuer string
	TTL    time.Duration

	// Leeway tolerates clock skew when checking exp/iat.
	Leeway time.Duration
}

// Resolver looks identities up by username. *identity.Credentials satisfies it.
type Resolver interface {
	Lookup(ctx context.Context, username string) (identity.Identity, error)
}

// Claims is the token payload. Subject carries the username.
type Claims struct {
	jwt.RegisteredClaims
}

// Username returns the subject claim.
func (c Claims) Username() string { return c.Subject }

// Token is an issued bearer token.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Gate issues and validates bearer tokens.
type Gate struct {
	cfg      Config
	resolver Resolver
	opts     []jwt.ParserOption
}

// New constructs a Gate. The secret must be at least token.MinKeyBytes long.
func New(cfg Config, resolver Resolver) (*Gate, error) {
	if len(cfg.Secret) == 0 {
		return nil, token.ErrKeyMissing
	}
	if len(cfg.Secret) < token.MinKeyBytes {
		return nil, token.ErrKeyTooShort
	}
	if resolver == nil {
		return nil, errors.New("gate: nil resolver")
	}

	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL > maxTTL {
		cfg.TTL = maxTTL
	}
	if cfg.Leeway < 0 {
		cfg.Leeway = 0
	}

	// Copy so later mutation of the caller's slice cannot change the key.
	cfg.Secret = append([]byte(nil), cfg.Secret...)

	return &Gate{
		cfg:      cfg,
		resolver: resolver,
		opts: []jwt.ParserOption{
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(cfg.Leeway),
		},
	}, nil
}

// TTL returns the effective token lifetime.
func (g *Gate) TTL() time.Duration { return g.cfg.TTL }

// Issue signs a token for username valid from now until now+TTL.
func (g *Gate) Issue(username string, now time.Time) (Token, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Token{}, errors.New("gate: empty subject")
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC().Truncate(time.Second)
	exp := now.Add(g.cfg.TTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.cfg.Issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.cfg.Secret)
	if err != nil {
		return Token{}, fmt.Errorf("gate: sign: %w", err)
	}

	return Token{Value: signed, IssuedAt: now, ExpiresAt: exp}, nil
}

// Verify checks signature, algorithm, issuer and expiry as of now.
// Any failure is ErrInvalidToken.
func (g *Gate) Verify(raw string, now time.Time) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrInvalidToken
	}
	if now.IsZero() {
		now = time.Now()
	}

	opts := make([]jwt.ParserOption, 0, len(g.opts)+1)
	opts = append(opts, g.opts...)
	opts = append(opts, jwt.WithTimeFunc(func() time.Time { return now }))

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return g.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// Validate resolves the verified claims to a live identity. A subject with
// no matching identity is identity.ErrUnauthorized; backend failures keep
// their StorageError type.
func (g *Gate) Validate(ctx context.Context, claims Claims) (identity.Identity, error) {
	const op = "gate.Validate"

	username := strings.TrimSpace(claims.Username())
	if username == "" {
		return identity.Identity{}, identity.OpError{Op: op, Kind: identity.ErrUnauthorized, Msg: "missing subject"}
	}

	id, err := g.resolver.Lookup(ctx, username)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.Identity{}, identity.OpError{Op: op, Kind: identity.ErrUnauthorized, Msg: "unknown subject"}
		}
		return identity.Identity{}, err
	}
	return id, nil
}

// Authenticate is Verify followed by Validate.
func (g *Gate) Authenticate(ctx context.Context, raw string, now time.Time) (identity.Identity, error) {
	claims, err := g.Verify(raw, now)
	if err != nil {
		return identity.Identity{}, err
	}
	return g.Validate(ctx, claims)
}
