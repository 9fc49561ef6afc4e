// Package apperrors provides structured application errors with HTTP status
// and exit code mapping.
package apperrors

import "errors"

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation = errors.New("validation error")
	ErrCancelled  = errors.New("request cancelled")
	ErrTransport  = errors.New("transport error")
	ErrConflict   = errors.New("conflict")
)

// Messages surfaced to users for the two remote-call failure kinds.
const (
	CancelledMessage = "Request cancelled"
	UnknownMessage   = "Unknown error occurred"
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Op       string // Operation that failed (e.g., "robotapi.reset")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel and the cause so both errors.Is(err, ErrTransport)
// and errors.As(err, &httpErr) work.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Cancelled creates the error returned when a call's context was cancelled.
func Cancelled(op string) error {
	return &Error{
		Sentinel: ErrCancelled,
		Message:  CancelledMessage,
		Op:       op,
	}
}

// Transport creates an error for a remote call that failed after all retries.
// The message is the last attempt's error message.
func Transport(op string, cause error) error {
	msg := UnknownMessage
	if cause != nil && cause.Error() != "" {
		msg = cause.Error()
	}
	return &Error{
		Sentinel: ErrTransport,
		Message:  msg,
		Op:       op,
		Cause:    cause,
	}
}

// Conflict creates an error for an operation rejected because another one is
// still in flight.
func Conflict(op, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Op:       op,
	}
}

// IsCancelled reports whether err represents superseded or abandoned work.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
