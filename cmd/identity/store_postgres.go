package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are quoted with pgx.Identifier.
// - Unique violations are classified by constraint name into ConflictError.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the identities table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "public",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// FindByUsername loads one identity by exact username.
func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (Identity, error) {
	const op = "identity.postgres.FindByUsername"

	var out Identity
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, salt, kdf_params, created_at
		   FROM `+pgIdent(s.schema, "identities")+`
		  WHERE username = $1`,
		username,
	).Scan(&out.ID, &out.Username, &out.PasswordHash, &out.Salt, &out.KDFParams, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		return Identity{}, err
	}
	out.CreatedAt = out.CreatedAt.UTC()
	return out, nil
}

// Insert writes id in a single statement.
func (s *PostgresStore) Insert(ctx context.Context, id Identity) error {
	const op = "identity.postgres.Insert"

	createdAt := id.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "identities")+` (
		     id, username, password_hash, salt, kdf_params, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6)`,
		id.ID,
		id.Username,
		id.PasswordHash,
		id.Salt,
		id.KDFParams,
		createdAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		return err
	}
	return nil
}

func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_identities_username", strings.Contains(c, "username"):
		return "username", true
	case c == "identities_pkey":
		return "id", true
	default:
		return "unique", true
	}
}
