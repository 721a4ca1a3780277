// Package errors defines the error taxonomy shared by share-archiver.
//
// Failures are reported as wrapped sentinels so callers can test the
// condition with [errors.Is] regardless of the context added on the way up:
//
//	if errors.Is(err, archerrors.ErrOwnership) {
//	    // the snapshot was not created by us
//	}
//
// Errors coming from the storage transport are not converted; they keep
// their original type and are only wrapped with the failing operation.
package errors

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess = 0
	ExitUser    = 1
	ExitSystem  = 2
	// ExitCanceled follows the shell convention for SIGINT.
	ExitCanceled = 130
)

var (
	// ErrNotFound indicates a referenced share or snapshot does not exist.
	ErrNotFound = errors.New("not found")

	// ErrOwnership indicates a snapshot lacks the managed metadata tag.
	ErrOwnership = errors.New("snapshot is not managed by share-archiver")

	// ErrArchiveState indicates an archive writer was used after Close.
	ErrArchiveState = errors.New("archive writer is closed")

	// ErrValidation indicates an invalid construction argument or configuration value.
	ErrValidation = errors.New("validation failed")

	// ErrCanceled indicates the caller aborted the operation.
	ErrCanceled = errors.New("operation canceled")

	// ErrExists indicates a destination is already present and overwriting is not allowed.
	ErrExists = errors.New("destination already exists")

	// ErrConsumed indicates a single-use entry sequence was iterated twice.
	ErrConsumed = errors.New("entry sequence already consumed")
)

// Validationf returns an ErrValidation carrying a formatted reason.
func Validationf(format string, args ...any) error {
	return errors.Wrapf(ErrValidation, format, args...)
}

// NotFoundf returns an ErrNotFound carrying a formatted reason.
func NotFoundf(format string, args ...any) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}

// Canceled marks err (usually ctx.Err()) as ErrCanceled while keeping
// context.Canceled / context.DeadlineExceeded reachable through errors.Is.
func Canceled(err error) error {
	if err == nil {
		err = context.Canceled
	}
	return errors.Mark(err, ErrCanceled)
}

// IsCanceled reports whether err stems from a caller cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ExitError wraps an error with the process exit code and an optional hint for the user.
type ExitError struct {
	Err        error
	Code       int
	Suggestion string
}

// NewUserError creates an ExitError with ExitUser code.
func NewUserError(err error, suggestion string) *ExitError {
	return &ExitError{Err: err, Code: ExitUser, Suggestion: suggestion}
}

// NewSystemError creates an ExitError with ExitSystem code.
func NewSystemError(err error, suggestion string) *ExitError {
	return &ExitError{Err: err, Code: ExitSystem, Suggestion: suggestion}
}

// Classify maps an arbitrary failure onto an ExitError.
// Validation and ownership problems are the user's to fix, everything else is a system error.
func Classify(err error) *ExitError {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	switch {
	case IsCanceled(err):
		return &ExitError{Err: err, Code: ExitCanceled}
	case errors.Is(err, ErrValidation):
		return NewUserError(err, "Check the configuration file and command flags")
	case errors.Is(err, ErrOwnership):
		return NewUserError(err, "Only snapshots created by share-archiver can be deleted")
	case errors.Is(err, ErrNotFound):
		return NewUserError(err, "Check the share name and snapshot timestamp")
	case errors.Is(err, ErrExists):
		return NewUserError(err, "Remove the existing archive or allow overwriting")
	default:
		return NewSystemError(err, "")
	}
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
