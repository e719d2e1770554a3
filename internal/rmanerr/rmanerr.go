// Package rmanerr defines the error taxonomy shared by every component of
// the backup manager. Every fallible operation in this module returns a
// plain error; operations that need to carry an exit code and user-facing
// detail/hint text wrap it in a *Error via one of the New* constructors.
package rmanerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure for exit-code and retry-policy purposes.
type Kind int

const (
	KindNone Kind = iota
	KindArgs
	KindSystem
	KindCorrupted
	KindAlreadyRunning
	KindArchiveFailed
	KindNoBackup
	KindPGCommand
	KindPGConnect
	KindPGIncompatible
	KindPGRunning
	KindPidFileBroken
	KindInterrupted
)

// ExitCode maps a Kind to the process exit status documented in the CLI
// reference. Success (0) is never produced here; callers return 0 directly.
func (k Kind) ExitCode() int {
	switch k {
	case KindArgs:
		return 1
	case KindSystem:
		return 2
	case KindCorrupted:
		return 3
	case KindAlreadyRunning:
		return 4
	case KindArchiveFailed:
		return 5
	case KindNoBackup:
		return 6
	case KindPGIncompatible:
		return 7
	case KindPGRunning:
		return 8
	case KindPidFileBroken:
		return 9
	case KindInterrupted:
		return 10
	case KindPGCommand:
		return 11
	case KindPGConnect:
		return 12
	default:
		return 1
	}
}

func (k Kind) String() string {
	switch k {
	case KindArgs:
		return "args"
	case KindSystem:
		return "system"
	case KindCorrupted:
		return "corrupted"
	case KindAlreadyRunning:
		return "already_running"
	case KindArchiveFailed:
		return "archive_failed"
	case KindNoBackup:
		return "no_backup"
	case KindPGCommand:
		return "pg_command"
	case KindPGConnect:
		return "pg_connect"
	case KindPGIncompatible:
		return "pg_incompatible"
	case KindPGRunning:
		return "pg_running"
	case KindPidFileBroken:
		return "pid_file_broken"
	case KindInterrupted:
		return "interrupted"
	default:
		return "none"
	}
}

// Error is the two-layer error type the design notes ask for: a taxonomy
// kind plus a message, an optional detail and an optional hint. It wraps an
// underlying cause so errors.Cause / errors.Unwrap still reach the root.
type Error struct {
	Kind   Kind
	Msg    string
	Detail string
	Hint   string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.cause }

// Cause satisfies pkg/errors' causer interface so errors.Cause(err) walks
// through an *Error to whatever it wraps, the same as Unwrap.
func (e *Error) Cause() error { return e.cause }

// Report renders the LEVEL/DETAIL/HINT block the CLI prints to stderr.
func (e *Error) Report() string {
	s := fmt.Sprintf("ERROR: %s\n", e.Error())
	if e.Detail != "" {
		s += fmt.Sprintf("DETAIL: %s\n", e.Detail)
	}
	if e.Hint != "" {
		s += fmt.Sprintf("HINT: %s\n", e.Hint)
	}
	return s
}

// New builds a taxonomy error with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a taxonomy kind to an existing error, preserving it as the
// cause so errors.Cause(err) still reaches the original failure.
func Wrap(cause error, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), cause: cause}
}

// WithDetail/WithHint return the receiver for fluent construction:
//
//	rmanerr.New(rmanerr.KindCorrupted, "bad manifest line").WithDetail(line)
func (e *Error) WithDetail(format string, args ...interface{}) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

func (e *Error) WithHint(format string, args ...interface{}) *Error {
	e.Hint = fmt.Sprintf(format, args...)
	return e
}

// KindOf extracts the taxonomy kind from err, defaulting to KindSystem for
// errors that never went through this package (e.g. a raw os.PathError).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSystem
}

// Cause unwraps to the deepest wrapped error, mirroring pkg/errors.Cause so
// callers that need the underlying os/io error can still get at it.
func Cause(err error) error {
	return errors.Cause(err)
}
