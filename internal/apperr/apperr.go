// Package apperr defines the error taxonomy shared by the storage runtime
// and the HTTP surface. Every error carries a machine-readable kind, an HTTP
// status, a timestamp and a metadata bag (path, operation, field names).
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error for callers and for HTTP status mapping.
type Kind string

const (
	KindValidation           Kind = "VALIDATION_ERROR"
	KindMissingRequiredField Kind = "MISSING_REQUIRED_FIELD"
	KindInvalidSchema        Kind = "INVALID_SCHEMA"
	KindInvalidColumnType    Kind = "INVALID_COLUMN_TYPE"
	KindInvalidIDFormat      Kind = "INVALID_ID_FORMAT"
	KindInvalidBufferSize    Kind = "INVALID_BUFFER_SIZE"
	KindDuplicateKey         Kind = "DUPLICATE_KEY"
	KindTableNotFound        Kind = "TABLE_NOT_FOUND"
	KindDatabaseNotFound     Kind = "DATABASE_NOT_FOUND"
	KindRecordNotFound       Kind = "RECORD_NOT_FOUND"
	KindStorage              Kind = "STORAGE_ERROR"
	KindFileSystem           Kind = "FILE_SYSTEM_ERROR"
	KindSerialization        Kind = "SERIALIZATION_ERROR"
	KindDeserialization      Kind = "DESERIALIZATION_ERROR"
	KindBufferOverflow       Kind = "BUFFER_OVERFLOW"
	KindInternal             Kind = "INTERNAL_ERROR"
)

// Status returns the suggested HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindMissingRequiredField, KindInvalidSchema,
		KindInvalidColumnType, KindInvalidIDFormat, KindInvalidBufferSize:
		return http.StatusBadRequest
	case KindDuplicateKey:
		return http.StatusConflict
	case KindTableNotFound, KindDatabaseNotFound, KindRecordNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is the concrete error type used across the store.
type Error struct {
	Kind      Kind
	Message   string
	Timestamp time.Time
	Meta      map[string]any
	cause     error
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an Error of the given kind with an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	e := New(kind, message)
	e.cause = cause
	return e
}

// With attaches a metadata entry and returns the error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

// Status returns the HTTP status code for the error's kind.
func (e *Error) Status() int { return e.Kind.Status() }

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is makes errors.Is match on kind: apperr.New(kind, "") can be used as a
// target to test any error of that kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf extracts the kind from an error chain, defaulting to INTERNAL_ERROR
// for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether the first *Error in err's chain carries the given
// kind. Like KindOf, it does not look past that first *Error.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Storage is shorthand for a STORAGE_ERROR with operation and path metadata,
// the two fields every storage failure carries.
func Storage(op, path string, cause error) *Error {
	return Wrap(KindStorage, op+" failed", cause).With("operation", op).With("path", path)
}
