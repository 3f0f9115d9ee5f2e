package tasks

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrStorage      = errors.New("storage")
)

// OpError carries an operation name and an error kind.
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

// StorageError hides driver detail from Error(); the cause stays reachable
// for errors.Is/As and structured logs.
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

func notFound(op string) error {
	return OpError{Op: op, Kind: ErrNotFound}
}

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
func IsStorage(err error) bool      { return errors.Is(err, ErrStorage) }
