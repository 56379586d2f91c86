package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig          = "CONFIG"
	ErrStoreCorruption = "STORE_CORRUPTION"
	ErrNotFound        = "NOT_FOUND"
	ErrTraversal       = "TRAVERSAL"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a specific code and message.
func Wrap(err error, code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewConfig reports missing required config keys.
func NewConfig(missing []string) *Error {
	return &Error{
		Code:       ErrConfig,
		Message:    fmt.Sprintf("missing required config keys: %s", strings.Join(missing, ", ")),
		Suggestion: "Add the keys to the config file passed with --config",
	}
}

// NewNotFound reports an unknown run or artifact.
func NewNotFound(what string) *Error {
	return &Error{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", what),
	}
}

// NewTraversal reports a path that resolves outside its run directory.
func NewTraversal(path string) *Error {
	return &Error{
		Code:    ErrTraversal,
		Message: fmt.Sprintf("path escapes run directory: %s", path),
	}
}

// Error implements the error interface. The message comes first, then the
// cause and suggestion when present, all on one line.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if e.Suggestion != "" {
		b.WriteString(" (")
		b.WriteString(e.Suggestion)
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rbErr *Error
	if errors.As(err, &rbErr) {
		return rbErr.Code == code
	}
	return false
}

// IsNotFound reports whether err should be surfaced as "not found". Traversal
// errors answer true as well so callers never leak whether a file exists.
func IsNotFound(err error) bool {
	return IsCode(err, ErrNotFound) || IsCode(err, ErrTraversal)
}
