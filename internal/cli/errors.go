package cli

import (
	"errors"
	"fmt"
)

// ErrUsage marks errors caused by how cmdtree was invoked: bad flags or
// config, an unreadable document, an occupied output path.
var ErrUsage = errors.New("cmdtree: usage error")

// usageError carries the message shown to the user, an optional hint on how
// to fix the invocation, and the loader or filesystem error behind it.
type usageError struct {
	msg   string
	hint  string
	cause error
}

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// wrapUsage keeps cause reachable through errors.Is/As.
func wrapUsage(cause error, hint, format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...), hint: hint, cause: cause}
}

func (e *usageError) Error() string {
	if e.hint == "" {
		return e.msg
	}
	return e.msg + "\nHint: " + e.hint
}

func (e *usageError) Unwrap() error { return e.cause }

func (e *usageError) Is(target error) bool { return target == ErrUsage }

// ExitCode maps an error returned by Execute to a process exit status: 0 for
// success, 2 for usage errors, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage):
		return 2
	default:
		return 1
	}
}
