package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// sqliteTimeLayout matches the identities table so timestamps sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store over the embedded SQLite database.
type SQLiteStore struct {
	writer *sql.DB
	reader *sql.DB
}

// NewSQLiteStore constructs a SQLiteStore. Handles are owned by the caller.
func NewSQLiteStore(writer, reader *sql.DB) (*SQLiteStore, error) {
	if writer == nil {
		return nil, fmt.Errorf("tasks: nil sqlite writer")
	}
	if reader == nil {
		reader = writer
	}
	return &SQLiteStore{writer: writer, reader: reader}, nil
}

const sqliteTaskColumns = `id, user_id, title, description, status, created_at, updated_at`

// List matches search case-insensitively for ASCII, which is what SQLite's LIKE provides.
func (s *SQLiteStore) List(ctx context.Context, owner string, f Filter) ([]Task, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{owner}
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		p := likePattern(q)
		where = append(where, `(title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`)
		args = append(args, p, p)
	}

	rows, err := s.reader.QueryContext(ctx,
		`SELECT `+sqliteTaskColumns+`
		   FROM tasks
		  WHERE `+strings.Join(where, " AND ")+`
		  ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]Task, 0)
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, owner, id string) (Task, error) {
	const op = "tasks.sqlite.Get"

	t, err := scanSQLiteTask(s.reader.QueryRowContext(ctx,
		`SELECT `+sqliteTaskColumns+` FROM tasks WHERE id = ? AND user_id = ?`,
		id, owner,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, notFound(op)
		}
		return Task{}, err
	}
	return t, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, t Task) error {
	_, err := s.writer.ExecContext(ctx,
		`INSERT INTO tasks (`+sqliteTaskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.UserID,
		t.Title,
		t.Description,
		string(t.Status),
		t.CreatedAt.UTC().Format(sqliteTimeLayout),
		t.UpdatedAt.UTC().Format(sqliteTimeLayout),
	)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, owner, id string) (bool, error) {
	res, err := s.writer.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND user_id = ?`,
		id, owner,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, owner, id string, status Status, now time.Time) (Task, error) {
	const op = "tasks.sqlite.UpdateStatus"

	t, err := scanSQLiteTask(s.writer.QueryRowContext(ctx,
		`UPDATE tasks
		    SET status = ?, updated_at = ?
		  WHERE id = ? AND user_id = ?
		RETURNING `+sqliteTaskColumns,
		string(status), now.UTC().Format(sqliteTimeLayout), id, owner,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, notFound(op)
		}
		return Task{}, err
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(row rowScanner) (Task, error) {
	var (
		t                Task
		status           string
		created, updated string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &status, &created, &updated); err != nil {
		return Task{}, err
	}
	t.Status = Status(status)

	var err error
	if t.CreatedAt, err = time.Parse(sqliteTimeLayout, created); err != nil {
		return Task{}, fmt.Errorf("created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(sqliteTimeLayout, updated); err != nil {
		return Task{}, fmt.Errorf("updated_at: %w", err)
	}
	return t, nil
}
