package core

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Error kinds returned by the services. Callers match them with errors.Is.
var (
	// ErrValidation marks bad input such as an oversized upload or a malformed cron.
	ErrValidation = errors.New("validation error")
	// ErrPreconditionFailed marks a command that is illegal in the entity's current state.
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrNotFound           = errors.New("not found")
	// ErrConflict marks a concurrent action on the same backup job.
	ErrConflict = errors.New("conflict")
	// ErrExecutorUnavailable marks a network failure or timeout talking to the
	// backup executor or security scanner. It is retryable.
	ErrExecutorUnavailable = errors.New("executor unavailable")
)

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func preconditionErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPreconditionFailed, fmt.Sprintf(format, args...))
}

func notFoundErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func executorError(action string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExecutorUnavailable, action, err)
}

// notFoundOr maps pgx.ErrNoRows to ErrNotFound and wraps everything else.
func notFoundOr(err error, what, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFoundErrorf("%s %s", what, id)
	}
	return fmt.Errorf("get %s %s: %w", what, id, err)
}

// Kind returns a short name for the error kind of err, or "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrPreconditionFailed):
		return "precondition_failed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrExecutorUnavailable):
		return "executor_unavailable"
	default:
		return "internal"
	}
}
