package tasks

import (
	"context"
	"time"
)

// EventType names a committed task mutation.
type EventType string

const (
	EventCreated       EventType = "task.created"
	EventStatusUpdated EventType = "task.status_updated"
	EventDeleted       EventType = "task.deleted"
)

// Event describes a mutation of one owner's task. For EventDeleted only
// Task.ID and Task.UserID are meaningful.
type Event struct {
	Type EventType
	Task Task
	At   time.Time
}

// Notifier receives events after the mutation has been stored.
// Implementations must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}
