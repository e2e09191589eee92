// Package validate implements the schema validation step of the
// request pipeline, wrapping github.com/go-playground/validator/v10.
package validate

import (
	"errors"

	validator "github.com/go-playground/validator/v10"
)

// Validator is the package-wide validator instance, so struct tag
// validators registered once (e.g. i18n translations) apply everywhere.
var Validator = validator.New()

// Struct validates v's `validate` struct tags.
func Struct(v any) error {
	return Validator.Struct(v)
}

// ToFieldErrors converts a validator error into a field->message map,
// a shape that serializes directly into a JSON error response field.
func ToFieldErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			out[fe.Field()] = fe.Error()
		}
	}
	return out
}
