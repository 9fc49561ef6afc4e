package apperrors

import (
	"errors"
	"net/http"
)

// HTTPStatus maps an error to the appropriate HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrCancelled):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Process exit codes used by the CLI.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitTransport  = 3
	ExitConflict   = 4
	ExitCancelled  = 130
)

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrValidation):
		return ExitValidation
	case errors.Is(err, ErrTransport):
		return ExitTransport
	case errors.Is(err, ErrConflict):
		return ExitConflict
	case errors.Is(err, ErrCancelled):
		return ExitCancelled
	default:
		return ExitFailure
	}
}
