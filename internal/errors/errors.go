// Package errors defines the stable error codes reported by a generation run.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies a failure mode.
type Code string

const (
	// DependencyNotGenerated indicates a dependency cache has no database yet.
	DependencyNotGenerated Code = "DEPENDENCY_NOT_GENERATED"
	// IncludeCycle indicates files could not be ordered within the round cap.
	IncludeCycle Code = "INCLUDE_CYCLE"
	// TaskFailed indicates a parse or generation task failed or panicked.
	TaskFailed Code = "TASK_FAILED"
	// ParseInvalid indicates a header had error diagnostics.
	ParseInvalid Code = "PARSE_INVALID"
	// OutputCollision indicates headers whose generated files share a path.
	OutputCollision Code = "OUTPUT_COLLISION"
	// NoDatabase indicates a cache directory holds no snapshot.
	NoDatabase Code = "NO_DATABASE"
	// SchemaMismatch indicates a snapshot written by an incompatible version.
	SchemaMismatch Code = "SCHEMA_MISMATCH"
	// InvalidConfig indicates configuration failed validation.
	InvalidConfig Code = "INVALID_CONFIG"
	// Internal indicates an unexpected failure.
	Internal Code = "INTERNAL_ERROR"
)

// Error carries a code, a message and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New creates an Error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error around cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err's chain contains an *Error with code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.cause
	}
	return false
}
