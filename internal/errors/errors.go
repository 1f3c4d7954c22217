// Package errors provides unified error handling with structured codes.
// Codes map the failure taxonomy of the platform: unsupported environment,
// permission denial, transient capture interruptions, network/streaming
// failures, timeouts, and parse failures.
package errors

import "fmt"

// Code classifies an error for propagation and retry decisions.
type Code int

const (
	Unknown Code = iota
	Internal
	// Unsupported marks a permanently missing capability (e.g. no speech
	// recognition available). Never retried.
	Unsupported
	// PermissionDenied is terminal for the current session.
	PermissionDenied
	// Transient covers benign capture interruptions (momentary silence,
	// engine restart). Handled by automatic restart, never user-visible.
	Transient
	// Network covers translation calls and pipeline sockets. Non-fatal,
	// user-visible but dismissible; affects only one pipeline variant.
	Network
	Timeout
	Canceled
	Parse
	Unavailable
)

func (c Code) String() string {
	switch c {
	case Internal:
		return "internal"
	case Unsupported:
		return "unsupported"
	case PermissionDenied:
		return "permission_denied"
	case Transient:
		return "transient"
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case Canceled:
		return "canceled"
	case Parse:
		return "parse"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// AppError is the base error type with structured code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// CodeOf extracts the code from an error, walking the cause chain.
func CodeOf(err error) Code {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return Unknown
}

// IsCode checks if an error carries a specific code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case Network, Timeout, Unavailable, Transient:
		return true
	default:
		return false
	}
}
