package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteTimeLayout is fixed-width so stored timestamps sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store over the embedded SQLite database.
// Writes go through the single-connection writer handle, reads through the reader pool.
type SQLiteStore struct {
	writer *sql.DB
	reader *sql.DB
}

// NewSQLiteStore constructs a SQLiteStore. Handles are owned by the caller.
func NewSQLiteStore(writer, reader *sql.DB) (*SQLiteStore, error) {
	if writer == nil {
		return nil, fmt.Errorf("identity: nil sqlite writer")
	}
	if reader == nil {
		reader = writer
	}
	return &SQLiteStore{writer: writer, reader: reader}, nil
}

// FindByUsername loads one identity by exact username.
func (s *SQLiteStore) FindByUsername(ctx context.Context, username string) (Identity, error) {
	const op = "identity.sqlite.FindByUsername"

	var (
		out     Identity
		created string
	)
	err := s.reader.QueryRowContext(ctx,
		`SELECT id, username, password_hash, salt, kdf_params, created_at
		   FROM identities
		  WHERE username = ?`,
		username,
	).Scan(&out.ID, &out.Username, &out.PasswordHash, &out.Salt, &out.KDFParams, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		return Identity{}, err
	}

	ts, err := time.Parse(sqliteTimeLayout, created)
	if err != nil {
		return Identity{}, fmt.Errorf("%s: created_at: %w", op, err)
	}
	out.CreatedAt = ts
	return out, nil
}

// Insert writes id in a single statement.
func (s *SQLiteStore) Insert(ctx context.Context, id Identity) error {
	const op = "identity.sqlite.Insert"

	createdAt := id.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.writer.ExecContext(ctx,
		`INSERT INTO identities (id, username, password_hash, salt, kdf_params, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id.ID,
		id.Username,
		id.PasswordHash,
		id.Salt,
		id.KDFParams,
		createdAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		if field, ok := sqliteClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		return err
	}
	return nil
}

// sqliteClassifyUniqueViolation maps a constraint failure to a logical field.
// The driver reports "UNIQUE constraint failed: identities.username".
func sqliteClassifyUniqueViolation(err error) (field string, ok bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return "", false
	}

	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
	default:
		if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT || !strings.Contains(se.Error(), "UNIQUE") {
			return "", false
		}
	}

	msg := strings.ToLower(se.Error())
	switch {
	case strings.Contains(msg, "identities.username"):
		return "username", true
	case strings.Contains(msg, "identities.id"):
		return "id", true
	default:
		return "unique", true
	}
}
