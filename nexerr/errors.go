// Package nexerr defines the request-serving core's error taxonomy:
// typed, not stringly-typed, values each carrying the HTTP status they
// map to, so validation and framework errors stay structured instead of
// ad-hoc strings.
package nexerr

import (
	"fmt"
	"net/http"
)

// Code identifies a category from the error taxonomy.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeMethodNotAllowed   Code = "method_not_allowed"
	CodeValidationFailure  Code = "validation_failure"
	CodeBodyParseError     Code = "body_parse_error"
	CodeStoreNotRegistered Code = "store_not_registered"
	CodeDuplicatePath      Code = "duplicate_path"
	CodePluginResolution   Code = "plugin_resolution_error"
	CodeHookTimeout        Code = "hook_timeout"
	CodeInternal           Code = "internal_error"
	CodeServiceUnavailable Code = "service_unavailable"
)

// Error is the concrete error type used throughout the core. Intentional
// marks an error a handler returned deliberately as a sentinel (e.g. a
// validation rejection), so the default error handler can avoid
// double-logging it.
type Error struct {
	Code        Code
	Status      int
	Message     string
	Intentional bool
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is enables errors.Is(err, nexerr.NotFound()) style comparisons by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func NotFound() *Error {
	return &Error{Code: CodeNotFound, Status: http.StatusNotFound, Message: "no route matched"}
}

func MethodNotAllowed() *Error {
	return &Error{Code: CodeMethodNotAllowed, Status: http.StatusMethodNotAllowed, Message: "method not allowed"}
}

func Validation(message string) *Error {
	return &Error{Code: CodeValidationFailure, Status: http.StatusBadRequest, Message: message, Intentional: true}
}

func BodyParse(cause error) *Error {
	return &Error{Code: CodeBodyParseError, Status: http.StatusBadRequest, Message: "malformed request body", Cause: cause}
}

func StoreNotRegistered(name string) *Error {
	return &Error{Code: CodeStoreNotRegistered, Status: http.StatusInternalServerError, Message: fmt.Sprintf("store %q was never registered", name)}
}

func DuplicatePath(method, path string) *Error {
	return &Error{Code: CodeDuplicatePath, Status: 0, Message: fmt.Sprintf("duplicate route %s %s", method, path)}
}

func PluginResolution(message string) *Error {
	return &Error{Code: CodePluginResolution, Status: 0, Message: message}
}

func HookTimeout(name string) *Error {
	return &Error{Code: CodeHookTimeout, Status: 0, Message: fmt.Sprintf("shutdown hook %q timed out", name)}
}

func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal error", Cause: cause}
}

func ServiceUnavailable() *Error {
	return &Error{Code: CodeServiceUnavailable, Status: http.StatusServiceUnavailable, Message: "server is shutting down", Intentional: true}
}

// StatusFor returns the HTTP status a generic error should be reported
// as: the *Error's own Status if it is one, or 500 for anything else.
func StatusFor(err error) int {
	if e, ok := err.(*Error); ok && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// IsIntentional reports whether err was deliberately returned by user code
// as a sentinel, to suppress double-logging in the default error handler.
func IsIntentional(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Intentional
}
