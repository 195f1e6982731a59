// apperr.go - Typed error codes shared by the commitment, disclosure, storage and API layers.
//
// Every error that crosses a package boundary carries a Code. The HTTP layer maps codes to
// status codes; errors.Is matches two *Error values when their codes are equal.

package apperr

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"sync"
)

// Code identifies a class of failure.
type Code string

const (
	CodeUnknown           Code = "UNKNOWN"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeInvalidProtocol   Code = "INVALID_PROTOCOL"
	CodeInvalidStats      Code = "INVALID_STATS"
	CodeInvalidThresholds Code = "INVALID_THRESHOLDS"
	CodeInvalidSalt       Code = "INVALID_SALT"
	CodeSaltReused        Code = "SALT_REUSED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeStorageFailure    Code = "STORAGE_FAILURE"
	CodeProverFailure     Code = "PROVER_FAILURE"
	CodeInternal          Code = "INTERNAL"
)

// Attributes describes the default behaviour attached to a code.
type Attributes struct {
	Message    string
	HTTPStatus int
	Retryable  bool
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown:           {Message: "unknown error", HTTPStatus: http.StatusInternalServerError},
		CodeInvalidArgument:   {Message: "invalid argument", HTTPStatus: http.StatusBadRequest},
		CodeInvalidProtocol:   {Message: "invalid study protocol", HTTPStatus: http.StatusBadRequest},
		CodeInvalidStats:      {Message: "invalid medical statistics", HTTPStatus: http.StatusBadRequest},
		CodeInvalidThresholds: {Message: "invalid proof thresholds", HTTPStatus: http.StatusBadRequest},
		CodeInvalidSalt:       {Message: "invalid salt", HTTPStatus: http.StatusBadRequest},
		CodeSaltReused:        {Message: "salt already used", HTTPStatus: http.StatusConflict},
		CodeNotFound:          {Message: "resource not found", HTTPStatus: http.StatusNotFound},
		CodeConflict:          {Message: "resource conflict", HTTPStatus: http.StatusConflict},
		CodeRateLimited:       {Message: "too many requests", HTTPStatus: http.StatusTooManyRequests, Retryable: true},
		CodeStorageFailure:    {Message: "storage failure", HTTPStatus: http.StatusServiceUnavailable, Retryable: true},
		CodeProverFailure:     {Message: "proof generation failed", HTTPStatus: http.StatusInternalServerError},
		CodeInternal:          {Message: "internal error", HTTPStatus: http.StatusInternalServerError},
	}
)

// Register adds or replaces the attributes of a code.
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf returns the attributes registered for code, falling back to UNKNOWN.
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error is the module-wide error type.
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
}

// Option customises an Error at construction time.
type Option func(*Error)

// WithMetadata attaches a key/value pair, e.g. the offending field name.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// New creates an error. An empty message takes the registered default.
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Newf is New with fmt formatting.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates an error around cause.
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code returns the error code.
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message returns the human-readable message without the cause.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata returns a copy of the attached metadata.
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// From extracts an *Error from err's chain.
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the code carried by err, or UNKNOWN.
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// HTTPStatus maps err to an HTTP status code.
func HTTPStatus(err error) int {
	return AttributesOf(CodeOf(err)).HTTPStatus
}

// Retryable reports whether err is worth retrying.
func Retryable(err error) bool {
	return AttributesOf(CodeOf(err)).Retryable
}
