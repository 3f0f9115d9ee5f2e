package realtime

import (
	"time"

	"taskman/cmd/internal/tasks"
)

const (
	Subprotocol     = "taskman.v1"
	ProtocolVersion = 1
)

// Outbound message types beyond the task event types.
const (
	TypeReady = "session.ready"
	TypePong  = "pong"
	TypeError = "error"
)

// Inbound message types.
const (
	TypePing = "ping"
)

// Message is the single JSON frame shape in both directions.
type Message struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	At      time.Time       `json:"at"`
	Task    *TaskPayload    `json:"task,omitempty"`
	Session *SessionPayload `json:"session,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

type TaskPayload struct {
	ID          string       `json:"id"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Status      tasks.Status `json:"status,omitempty"`
	CreatedAt   *time.Time   `json:"created_at,omitempty"`
	UpdatedAt   *time.Time   `json:"updated_at,omitempty"`
}

type SessionPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// inbound is what clients may send; anything else is answered with an error frame.
type inbound struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

func eventMessage(e tasks.Event) Message {
	p := &TaskPayload{ID: e.Task.ID}
	if e.Type != tasks.EventDeleted {
		created, updated := e.Task.CreatedAt.UTC(), e.Task.UpdatedAt.UTC()
		p.Title = e.Task.Title
		p.Description = e.Task.Description
		p.Status = e.Task.Status
		p.CreatedAt = &created
		p.UpdatedAt = &updated
	}
	return Message{V: ProtocolVersion, Type: string(e.Type), At: e.At.UTC(), Task: p}
}

func errorMessage(code, msg string, now time.Time) Message {
	return Message{V: ProtocolVersion, Type: TypeError, At: now, Error: &ErrorPayload{Code: code, Message: msg}}
}
