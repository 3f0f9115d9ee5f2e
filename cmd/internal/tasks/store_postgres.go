package tasks

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
// The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the tasks table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("tasks: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "public"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("tasks: nil pool")
	}
	return st, nil
}

const pgTaskColumns = `id, user_id, title, description, status, created_at, updated_at`

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "tasks"}.Sanitize()
}

func (s *PostgresStore) List(ctx context.Context, owner string, f Filter) ([]Task, error) {
	var (
		where = []string{"user_id = $1"}
		args  = []any{owner}
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, likePattern(q))
		n := strconv.Itoa(len(args))
		where = append(where, `(title ILIKE $`+n+` ESCAPE '\' OR description ILIKE $`+n+` ESCAPE '\')`)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+pgTaskColumns+`
		   FROM `+s.table()+`
		  WHERE `+strings.Join(where, " AND ")+`
		  ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Task, 0)
	for rows.Next() {
		t, err := scanPgTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, owner, id string) (Task, error) {
	const op = "tasks.postgres.Get"

	t, err := scanPgTask(s.pool.QueryRow(ctx,
		`SELECT `+pgTaskColumns+` FROM `+s.table()+` WHERE id = $1 AND user_id = $2`,
		id, owner,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, notFound(op)
		}
		return Task{}, err
	}
	return t, nil
}

func (s *PostgresStore) Insert(ctx context.Context, t Task) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (`+pgTaskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, t.Title, t.Description, string(t.Status), t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, owner, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table()+` WHERE id = $1 AND user_id = $2`,
		id, owner,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, owner, id string, status Status, now time.Time) (Task, error) {
	const op = "tasks.postgres.UpdateStatus"

	t, err := scanPgTask(s.pool.QueryRow(ctx,
		`UPDATE `+s.table()+`
		    SET status = $1, updated_at = $2
		  WHERE id = $3 AND user_id = $4
		RETURNING `+pgTaskColumns,
		string(status), now, id, owner,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, notFound(op)
		}
		return Task{}, err
	}
	return t, nil
}

func scanPgTask(row pgx.Row) (Task, error) {
	var (
		t      Task
		status string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Task{}, err
	}
	t.Status = Status(status)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}
