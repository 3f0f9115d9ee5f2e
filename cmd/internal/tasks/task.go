package tasks

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusOpen, StatusInProgress, StatusDone}

// ParseStatus accepts a status name case-insensitively.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusOpen:
		return StatusOpen, true
	case StatusInProgress:
		return StatusInProgress, true
	case StatusDone:
		return StatusDone, true
	default:
		return "", false
	}
}

// Task is owned by exactly one identity (UserID).
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Status Status
	Search string
}

// CreateInput is the caller-supplied part of a new task.
type CreateInput struct {
	Title       string
	Description string
}

const (
	MaxTitleChars       = 200
	MaxDescriptionChars = 2000
	MaxSearchChars      = 200
)
