// Package storage opens the relational backends and applies the embedded schema.
//
// Two dialects are supported: PostgreSQL through a pgx pool owned by the app,
// and an embedded SQLite database (modernc.org/sqlite) used when no
// Postgres URL is configured and by the package tests.
package storage
