package api

import (
	"errors"
	"fmt"
)

var (
	// ErrBadRequest indicates a malformed or unparseable request body.
	ErrBadRequest = errors.New("bad request")
	// ErrBackpressure indicates the invalidation queue refused an event.
	ErrBackpressure = errors.New("queue backpressure")
	// ErrUnsupportedMedia indicates a non-JSON request body.
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

// Error carries an operation tag alongside the underlying cause so logs can
// attribute failures to the handler that produced them.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Kind != nil && e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Kind != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is reports whether the error matches the kind sentinel or the wrapped cause.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target) || errors.Is(e.Err, target)
}

// NewKind creates a tagged error from a kind sentinel alone.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// Wrap tags an existing error with the operation that observed it.
func Wrap(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// WrapKind tags an existing error with an operation and a kind sentinel.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}
