package identity

import (
	"errors"
	"fmt"
	"log/slog"
)

// Error kinds. They are stable for errors.Is and map onto API status codes.
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrStorage      = errors.New("storage")
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Msg may include human-readable context; never secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// ConflictError reports a uniqueness conflict for a logical field ("username").
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrConflict)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing row.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrNotFound)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// StorageError reports a backend failure. Error() carries no driver detail;
// the cause is reachable through errors.Is/As and is rendered when logged.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, ErrStorage)
}

func (e StorageError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStorage}
	}
	return []error{ErrStorage, e.Err}
}

// LogValue renders the cause for structured logs only.
func (e StorageError) LogValue() slog.Value {
	cause := "<nil>"
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return slog.GroupValue(
		slog.String("op", e.Op),
		slog.String("kind", ErrStorage.Error()),
		slog.String("cause", cause),
	)
}

func storageErr(op string, err error) error {
	return StorageError{Op: op, Err: err}
}

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err represents ErrNotFound (including NotFoundError).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsUnauthorized reports whether err represents ErrUnauthorized.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsStorage reports whether err represents ErrStorage.
func IsStorage(err error) bool { return errors.Is(err, ErrStorage) }
