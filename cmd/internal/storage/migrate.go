package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// MigratePostgres applies pending migrations using a database/sql view of pool.
// The pool stays owned by the caller.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) ([]int64, error) {
	if pool == nil {
		return nil, fmt.Errorf("storage: nil pool")
	}
	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	return migrate(ctx, goose.DialectPostgres, db, "migrations/postgres")
}

// MigrateSQLite applies pending migrations on db.
func MigrateSQLite(ctx context.Context, db *sql.DB) ([]int64, error) {
	return migrate(ctx, goose.DialectSQLite3, db, "migrations/sqlite")
}

// migrate uses a goose Provider rather than the package-level goose state,
// so both dialects can be migrated from the same process.
func migrate(ctx context.Context, dialect goose.Dialect, db *sql.DB, dir string) ([]int64, error) {
	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	results, err := p.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	applied := make([]int64, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}
