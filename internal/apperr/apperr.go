// Package apperr holds the closed set of error kinds every request failure is
// reduced to, together with their HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation Kind = "Validation"
	KindAuth       Kind = "Auth"
	KindForbidden  Kind = "Forbidden"
	KindNotFound   Kind = "NotFound"
	KindConflict   Kind = "Conflict"
	KindDatabase   Kind = "Database"
	KindInternal   Kind = "InternalServerError"
)

var kindDefaults = map[Kind]struct {
	status  int
	message string
}{
	KindValidation: {http.StatusBadRequest, "Validation failed"},
	KindAuth:       {http.StatusUnauthorized, "Authentication required"},
	KindForbidden:  {http.StatusForbidden, "Access denied"},
	KindNotFound:   {http.StatusNotFound, "Resource not found"},
	KindConflict:   {http.StatusConflict, "Resource already exists"},
	KindDatabase:   {http.StatusInternalServerError, "Database error"},
	KindInternal:   {http.StatusInternalServerError, "Internal server error"},
}

// StatusCode returns the default HTTP status for k.
func (k Kind) StatusCode() int {
	if d, ok := kindDefaults[k]; ok {
		return d.status
	}
	return http.StatusInternalServerError
}

// DefaultMessage returns the human message used when none is given.
func (k Kind) DefaultMessage() string {
	if d, ok := kindDefaults[k]; ok {
		return d.message
	}
	return kindDefaults[KindInternal].message
}

// Error is a classified failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Metadata   map[string]any
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrNotFound)
// works for every NotFound.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// WithMeta returns a copy of e with key set in its metadata.
func (e *Error) WithMeta(key string, value any) *Error {
	cp := *e
	cp.Metadata = make(map[string]any, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		cp.Metadata[k] = v
	}
	cp.Metadata[key] = value
	return &cp
}

// Kind sentinels for errors.Is.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrAuth       = &Error{Kind: KindAuth}
	ErrForbidden  = &Error{Kind: KindForbidden}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrDatabase   = &Error{Kind: KindDatabase}
	ErrInternal   = &Error{Kind: KindInternal}
)

func newError(kind Kind, message string, cause error) *Error {
	if message == "" {
		message = kind.DefaultMessage()
	}
	return &Error{Kind: kind, StatusCode: kind.StatusCode(), Message: message, Cause: cause}
}

func NewValidation(message string) *Error { return newError(KindValidation, message, nil) }
func NewAuth(message string) *Error       { return newError(KindAuth, message, nil) }
func NewForbidden(message string) *Error  { return newError(KindForbidden, message, nil) }
func NewNotFound(message string) *Error   { return newError(KindNotFound, message, nil) }

func NewConflict(message string, cause error) *Error {
	return newError(KindConflict, message, cause)
}

func NewDatabase(message string, cause error) *Error {
	return newError(KindDatabase, message, cause)
}

func NewInternal(message string, cause error) *Error {
	return newError(KindInternal, message, cause)
}

// Wrap attaches cause to a fresh error of the given kind.
func Wrap(kind Kind, message string, cause error) *Error {
	return newError(kind, message, cause)
}
