package errx

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable error code surfaced in API error envelopes.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeAgentExecution     Code = "AGENT_EXECUTION_ERROR"
	CodeDocumentLoad       Code = "DOCUMENT_LOAD_ERROR"
	CodeDocumentParse      Code = "DOCUMENT_PARSE_ERROR"
	CodeChunking           Code = "CHUNKING_ERROR"
	CodeStorage            Code = "STORAGE_ERROR"
	CodeIndexing           Code = "INDEXING_ERROR"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// HTTPStatus maps the code to the status its envelope is served with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation, CodeDocumentLoad, CodeDocumentParse:
		return http.StatusBadRequest
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error wraps an underlying error with a stable code and safe messages.
type Error struct {
	Err     error
	Code    Code
	Message string
	Details string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without an underlying cause.
func New(code Code, message, details string) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// Wrap attaches a code and safe message to an underlying error. The cause's
// text becomes the detail surfaced to clients.
func Wrap(err error, code Code, message string) *Error {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &Error{Err: err, Code: code, Message: message, Details: details}
}

// Is reports whether the target matches the underlying error or the Error itself.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to Error or the wrapped error in a chain.
func (e *Error) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**Error); ok {
		*t = e
		return true
	}
	return false
}

// CodeOf extracts the code from an error chain, falling back to INTERNAL_ERROR.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// From returns the Error in the chain, or an INTERNAL_ERROR wrapper when the
// chain carries no Error.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, CodeInternal, "An unexpected error occurred")
}
