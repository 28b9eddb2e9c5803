package cmd

import (
	"errors"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
)

// Exit codes for the knurl CLI
const (
	// ExitSuccess indicates the request (or every batch request) completed
	ExitSuccess = 0

	// ExitRequestFailed indicates an HTTP status >= 400 under --fail, or a
	// failed batch request
	ExitRequestFailed = 1

	// ExitBadRequest indicates an invalid request or descriptor file
	ExitBadRequest = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates a network, protocol or I/O error
	ExitNetworkError = 4

	// ExitTimeout indicates the request timed out
	ExitTimeout = 5

	// ExitCancelled indicates the request was cancelled
	ExitCancelled = 6

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// exitError carries an exit code. reported is set when the command has
// already printed the failure.
type exitError struct {
	code     int
	err      error
	reported bool
}

func (e *exitError) Error() string {
	if e.err == nil {
		return "command failed"
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error {
	return &exitError{code: ExitUsageError, err: err}
}

func configError(err error) error {
	return &exitError{code: ExitConfigError, err: err}
}

// reported marks err as already printed, keeping the code its kind maps to.
func reported(err error) error {
	return &exitError{code: exitCode(err), err: err, reported: true}
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		// cobra argument and flag errors
		return ExitUsageError
	}
	switch appErr.Kind {
	case apperror.BadRequest:
		return ExitBadRequest
	case apperror.Timeout:
		return ExitTimeout
	case apperror.UserCancelled:
		return ExitCancelled
	default:
		return ExitNetworkError
	}
}
