package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Registration and configuration error codes
const (
	ErrTrackAlreadyRegistered ErrorCode = "TRACK_ALREADY_REGISTERED"
	ErrNilStream              ErrorCode = "NIL_STREAM"
	ErrInvalidTrack           ErrorCode = "INVALID_TRACK"
	ErrInvalidConfig          ErrorCode = "INVALID_CONFIG"
)

// Decode error codes
const (
	ErrDecodeFailed    ErrorCode = "DECODE_FAILED"
	ErrStreamCancelled ErrorCode = "STREAM_CANCELLED"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
