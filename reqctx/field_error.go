package reqctx

import (
	"fmt"
	"strings"
)

// fieldSentinel lets FieldErrors participate in errors.Is comparisons
// without exposing the concrete aggregate type.
type fieldSentinel string

func (e fieldSentinel) Error() string { return string(e) }

// Sentinel errors for the common binding/validation field-error categories.
//
//	var fe reqctx.FieldErrors
//	if errors.As(err, &fe) {
//	    switch {
//	    case errors.Is(fe, reqctx.ErrFieldUnexpected):
//	    case errors.Is(fe, reqctx.ErrFieldInvalidType):
//	    case errors.Is(fe, reqctx.ErrFieldTypeExpected):
//	    }
//	}
var (
	ErrFieldUnexpected   error = fieldSentinel("unexpected")
	ErrFieldInvalidType  error = fieldSentinel("invalid type")
	ErrFieldTypeExpected error = fieldSentinel("type expected")
)

// FieldError is a single field's binding or validation failure.
type FieldError interface {
	Field() string
	Message() string
}

// FieldErrors aggregates one or more FieldError values and satisfies error.
type FieldErrors interface {
	error
	All() []FieldError
}

type fieldError struct {
	field   string
	message string
}

func (e fieldError) Field() string   { return e.field }
func (e fieldError) Message() string { return e.message }
func (e fieldError) Error() string   { return fmt.Sprintf("field %s: %s", e.field, e.message) }

type fieldErrorsMap struct {
	m map[string]string
}

func (f fieldErrorsMap) Error() string { return "field validation errors" }

// Is matches if any contained field error belongs to the sentinel's category.
func (f fieldErrorsMap) Is(target error) bool {
	s, ok := target.(fieldSentinel)
	if !ok {
		return false
	}
	for _, msg := range f.m {
		switch s {
		case ErrFieldTypeExpected.(fieldSentinel):
			if strings.HasSuffix(msg, " "+ErrFieldTypeExpected.Error()) {
				return true
			}
		case ErrFieldUnexpected.(fieldSentinel):
			if msg == ErrFieldUnexpected.Error() {
				return true
			}
		case ErrFieldInvalidType.(fieldSentinel):
			if msg == ErrFieldInvalidType.Error() {
				return true
			}
		default:
			if msg == s.Error() {
				return true
			}
		}
	}
	return false
}

func (f fieldErrorsMap) All() []FieldError {
	out := make([]FieldError, 0, len(f.m))
	for k, v := range f.m {
		out = append(out, fieldError{field: k, message: v})
	}
	return out
}

// fieldErrorsFromMap builds a FieldErrors aggregate from field->message
// pairs, or nil if m is empty.
func fieldErrorsFromMap(m map[string]string) FieldErrors {
	if len(m) == 0 {
		return nil
	}
	return fieldErrorsMap{m: m}
}
