package tasks

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"taskman/cmd/identity/ids"
)

// Service scopes every task operation to an owner id and announces
// committed mutations to its Notifier.
type Service struct {
	store    Store
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithNotifier sets the mutation sink (default: discard).
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the clock used for timestamps and ids.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service over st.
func NewService(st Store, opts ...ServiceOption) (*Service, error) {
	if st == nil {
		return nil, errors.New("tasks: nil store")
	}
	s := &Service{
		store:    st,
		notifier: nopNotifier{},
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// List returns the owner's tasks matching f, oldest first.
func (s *Service) List(ctx context.Context, owner string, f Filter) ([]Task, error) {
	const op = "tasks.List"

	if owner == "" {
		return nil, invalid(op, "owner is required")
	}
	if f.Status != "" {
		st, ok := ParseStatus(string(f.Status))
		if !ok {
			return nil, invalid(op, "unknown status")
		}
		f.Status = st
	}
	f.Search = strings.TrimSpace(f.Search)
	if utf8.RuneCountInString(f.Search) > MaxSearchChars {
		return nil, invalid(op, "search is too long")
	}

	out, err := s.store.List(ctx, owner, f)
	if err != nil {
		return nil, StorageError{Op: op, Err: err}
	}
	return out, nil
}

// Get returns one owned task.
func (s *Service) Get(ctx context.Context, owner, id string) (Task, error) {
	const op = "tasks.Get"

	if owner == "" {
		return Task{}, invalid(op, "owner is required")
	}
	if !ids.Valid(id) {
		return Task{}, notFound(op)
	}

	t, err := s.store.Get(ctx, owner, id)
	if err != nil {
		if IsNotFound(err) {
			return Task{}, notFound(op)
		}
		return Task{}, StorageError{Op: op, Err: err}
	}
	return t, nil
}

// Create stores a new OPEN task for owner.
func (s *Service) Create(ctx context.Context, owner string, in CreateInput) (Task, error) {
	const op = "tasks.Create"

	if owner == "" {
		return Task{}, invalid(op, "owner is required")
	}
	title := strings.TrimSpace(in.Title)
	desc := strings.TrimSpace(in.Description)
	switch {
	case title == "":
		return Task{}, invalid(op, "title is required")
	case utf8.RuneCountInString(title) > MaxTitleChars:
		return Task{}, invalid(op, "title is too long")
	case utf8.RuneCountInString(desc) > MaxDescriptionChars:
		return Task{}, invalid(op, "description is too long")
	}

	now := s.now()
	id, err := ids.New(now)
	if err != nil {
		return Task{}, err
	}

	t := Task{
		ID:          id,
		UserID:      owner,
		Title:       title,
		Description: desc,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Insert(ctx, t); err != nil {
		return Task{}, StorageError{Op: op, Err: err}
	}

	s.notify(ctx, EventCreated, t, now)
	return t, nil
}

// Delete removes one owned task.
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	const op = "tasks.Delete"

	if owner == "" {
		return invalid(op, "owner is required")
	}
	if !ids.Valid(id) {
		return notFound(op)
	}

	ok, err := s.store.Delete(ctx, owner, id)
	if err != nil {
		return StorageError{Op: op, Err: err}
	}
	if !ok {
		return notFound(op)
	}

	s.notify(ctx, EventDeleted, Task{ID: id, UserID: owner}, s.now())
	return nil
}

// UpdateStatus moves an owned task to status.
func (s *Service) UpdateStatus(ctx context.Context, owner, id string, status Status) (Task, error) {
	const op = "tasks.UpdateStatus"

	if owner == "" {
		return Task{}, invalid(op, "owner is required")
	}
	st, ok := ParseStatus(string(status))
	if !ok {
		return Task{}, invalid(op, "unknown status")
	}
	if !ids.Valid(id) {
		return Task{}, notFound(op)
	}

	now := s.now()
	t, err := s.store.UpdateStatus(ctx, owner, id, st, now)
	if err != nil {
		if IsNotFound(err) {
			return Task{}, notFound(op)
		}
		return Task{}, StorageError{Op: op, Err: err}
	}

	s.notify(ctx, EventStatusUpdated, t, now)
	return t, nil
}

func (s *Service) notify(ctx context.Context, typ EventType, t Task, at time.Time) {
	s.notifier.Notify(ctx, Event{Type: typ, Task: t, At: at})
	s.log.Debug("tasks.event", "type", string(typ), "task_id", t.ID)
}
