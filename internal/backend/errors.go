package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a lookup, update or delete filter matched no row.
	ErrNotFound = errors.New("not found")
	// ErrUnsupported indicates the table has no rule for the requested operation.
	ErrUnsupported = errors.New("operation not supported")
	// ErrAuthFailure indicates the credentials were rejected.
	ErrAuthFailure = errors.New("invalid login credentials")
	// ErrConflict indicates a uniqueness rule was violated.
	ErrConflict = errors.New("conflict")
	// ErrInvalid indicates the payload broke a table invariant.
	ErrInvalid = errors.New("invalid payload")
)

// ErrorKind maps an error onto the short kind name used in response envelopes.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrAuthFailure):
		return "auth_failure"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalid):
		return "invalid"
	default:
		return "internal"
	}
}

// Errorf wraps kind with a formatted detail message.
func Errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
