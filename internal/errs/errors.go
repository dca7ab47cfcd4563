// Package errs defines the error taxonomy shared by the storage engine.
//
// Every failure surfaced by a storage-engine operation is an *Error carrying a
// Code. The Code classifies the failure (and maps to an HTTP-style status for
// outer surfaces); callers branch on it with errors.As or the IsXxx predicates
// instead of matching message strings.
package errs

import (
	"errors"
	"fmt"
)

// Code categorizes storage-engine errors.
type Code string

const (
	// CodeNotFound indicates the requested page does not exist. It is only
	// returned after an authoritative check, never on a stale cache read.
	CodeNotFound Code = "NOT_FOUND"

	// CodeUnsupportedMediaType indicates a content type outside the accepted set.
	CodeUnsupportedMediaType Code = "UNSUPPORTED_MEDIA_TYPE"

	// CodeMalformedPayload indicates the codec could not parse the input.
	CodeMalformedPayload Code = "MALFORMED_PAYLOAD"

	// CodeStructuralCorruption indicates a page file lacks its own identity,
	// stream or view declaration. Fatal for that read, not retried.
	CodeStructuralCorruption Code = "STRUCTURAL_CORRUPTION"

	// CodePartialWrite indicates a write or seal did not complete. No partial
	// state is visible, so the caller may retry.
	CodePartialWrite Code = "PARTIAL_WRITE_FAILURE"

	// CodeInvalidArgument indicates a bad folder name, fragmenter or config value.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
)

// Status returns the HTTP status class associated with the code.
func (c Code) Status() int {
	switch c {
	case CodeNotFound:
		return 404
	case CodeUnsupportedMediaType:
		return 415
	case CodeMalformedPayload, CodeInvalidArgument:
		return 400
	case CodePartialWrite:
		return 503
	default:
		return 500
	}
}

// Error is the concrete error type for all storage-engine failures.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Op names the operation that failed, e.g. "read node".
	Op string

	// Path is the page file or folder involved, when there is one.
	Path string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause (optional).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether retrying the whole operation is safe and useful.
func (e *Error) Retryable() bool { return e.Code == CodePartialWrite }

// New creates an Error without an underlying cause.
func New(code Code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Wrap creates an Error around cause.
func Wrap(code Code, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}

// WithPath returns e with Path set. It mutates and returns the receiver so it
// can be chained off New/Wrap.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// CodeOf returns the Code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err is (or wraps) a NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsUnsupportedMediaType reports whether err is (or wraps) an UNSUPPORTED_MEDIA_TYPE error.
func IsUnsupportedMediaType(err error) bool { return CodeOf(err) == CodeUnsupportedMediaType }

// IsMalformedPayload reports whether err is (or wraps) a MALFORMED_PAYLOAD error.
func IsMalformedPayload(err error) bool { return CodeOf(err) == CodeMalformedPayload }

// IsStructuralCorruption reports whether err is (or wraps) a STRUCTURAL_CORRUPTION error.
func IsStructuralCorruption(err error) bool { return CodeOf(err) == CodeStructuralCorruption }

// IsPartialWrite reports whether err is (or wraps) a PARTIAL_WRITE_FAILURE error.
func IsPartialWrite(err error) bool { return CodeOf(err) == CodePartialWrite }

// IsInvalidArgument reports whether err is (or wraps) an INVALID_ARGUMENT error.
func IsInvalidArgument(err error) bool { return CodeOf(err) == CodeInvalidArgument }
