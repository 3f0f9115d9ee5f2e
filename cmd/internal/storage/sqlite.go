package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLite holds split reader/writer handles on one database.
// The writer is limited to a single connection to avoid "database is locked" errors.
type SQLite struct {
	Writer *sql.DB
	Reader *sql.DB
	dsn    string
}

// OpenSQLite opens (creating if needed) the database file at path with WAL
// mode, a busy timeout and foreign keys enabled, then applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == ":memory:" {
		return OpenSQLiteMemory(ctx, "taskman")
	}
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path,
	)
	return openSQLite(ctx, dsn)
}

// OpenSQLiteMemory opens a named shared-cache in-memory database. Handles
// opened with the same name see the same data until the last one is closed.
func OpenSQLiteMemory(ctx context.Context, name string) (*SQLite, error) {
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		url.PathEscape(name),
	)
	return openSQLite(ctx, dsn)
}

func openSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.PingContext(ctx); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	if err := reader.PingContext(ctx); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, fmt.Errorf("ping reader: %w", err)
	}

	db := &SQLite{Writer: writer, Reader: reader, dsn: dsn}

	if _, err := MigrateSQLite(ctx, writer); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Ping checks the writer handle.
func (db *SQLite) Ping(ctx context.Context) error {
	return db.Writer.PingContext(ctx)
}

// Close closes both handles and returns the first error encountered.
func (db *SQLite) Close() error {
	var firstErr error

	if err := db.Reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}
	if err := db.Writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}

	return firstErr
}
