package tasks

import (
	"context"
	"strings"
	"time"
)

// Store is the task persistence boundary. Every read and write is scoped
// by owner; a task that exists but belongs to someone else is reported the
// same way as a missing one.
//
// Contract:
//   - Get and UpdateStatus return an error satisfying IsNotFound when no
//     owned row matches.
//   - Delete reports whether a row was removed.
//   - List returns tasks in creation order.
type Store interface {
	List(ctx context.Context, owner string, f Filter) ([]Task, error)
	Get(ctx context.Context, owner, id string) (Task, error)
	Insert(ctx context.Context, t Task) error
	Delete(ctx context.Context, owner, id string) (bool, error)
	UpdateStatus(ctx context.Context, owner, id string, status Status, now time.Time) (Task, error)
}

// likePattern builds a substring LIKE pattern with \ as the escape character.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
