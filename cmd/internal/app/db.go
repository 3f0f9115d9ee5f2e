package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskman/cmd/identity"
	"taskman/cmd/internal/storage"
	"taskman/cmd/internal/tasks"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDBPool builds a pgxpool from cfg and validates connectivity.
// It does not run migrations; openBackend does that.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 && cfg.DBMinConns <= pcfg.MaxConns {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

// backend bundles the stores of one database together with its lifecycle.
type backend struct {
	name       string
	identities identity.Store
	tasks      tasks.Store

	ping  func(ctx context.Context) error
	close func()
}

// openBackend selects Postgres when a database URL is configured and the
// embedded SQLite database otherwise. Migrations are applied either way.
func openBackend(ctx context.Context, cfg Config, log *slog.Logger) (*backend, error) {
	if cfg.postgresEnabled() {
		return openPostgres(ctx, cfg, log)
	}
	return openSQLite(ctx, cfg, log)
}

func openPostgres(ctx context.Context, cfg Config, log *slog.Logger) (*backend, error) {
	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	applied, err := storage.MigratePostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	ids, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	ts, err := tasks.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("db.enabled", "backend", "postgres", "migrations_applied", len(applied))
	return &backend{
		name:       "postgres",
		identities: ids,
		tasks:      ts,
		ping:       func(ctx context.Context) error { return PingDB(ctx, pool, 2*time.Second) },
		close:      pool.Close,
	}, nil
}

func openSQLite(ctx context.Context, cfg Config, log *slog.Logger) (*backend, error) {
	if cfg.SQLitePath == "" {
		return nil, errors.New("sqlite: empty path")
	}

	db, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	ids, err := identity.NewSQLiteStore(db.Writer, db.Reader)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ts, err := tasks.NewSQLiteStore(db.Writer, db.Reader)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info("db.enabled", "backend", "sqlite", "path", cfg.SQLitePath)
	return &backend{
		name:       "sqlite",
		identities: ids,
		tasks:      ts,
		ping: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return db.Ping(ctx)
		},
		close: func() {
			if err := db.Close(); err != nil {
				log.Error("db.close.fail", "backend", "sqlite", "err", err)
			}
		},
	}, nil
}
