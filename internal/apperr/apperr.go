// Package apperr holds the error taxonomy surfaced by the conversation engine.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both "does not exist" and "not visible to the caller"
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrBadRequest = errors.New("bad request")
)

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func Forbidden(format string, args ...any) error {
	return wrap(ErrForbidden, format, args...)
}

func BadRequest(format string, args ...any) error {
	return wrap(ErrBadRequest, format, args...)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Message strips the kind prefix so the text can be shown to a client
func Message(err error) string {
	for _, kind := range []error{ErrNotFound, ErrForbidden, ErrBadRequest} {
		if errors.Is(err, kind) {
			msg := err.Error()
			prefix := kind.Error() + ": "
			if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
				return msg[len(prefix):]
			}
			return msg
		}
	}
	return err.Error()
}
