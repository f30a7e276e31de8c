package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// langField is the only recognized submission form field.
const langField = "lang"

// Meta holds the validated submission form fields.
type Meta struct {
	Lang string `validate:"required,oneof=gcc g++ java python"`
}

// FieldError reports the form field that failed schema validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%q %s", e.Field, e.Reason)
}

var validate = validator.New()

// ValidateFields checks the form field map against the submission schema:
// exactly one recognized field, lang, restricted to the accepted toolchain
// identifiers. Any other shape fails with a FieldError naming the offending
// field.
func ValidateFields(fields map[string]string) (Meta, error) {
	for name := range fields {
		if name != langField {
			return Meta{}, &FieldError{Field: name, Reason: "is not allowed"}
		}
	}

	meta := Meta{Lang: fields[langField]}
	if err := validate.Struct(meta); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
			fieldErr := validationErrs[0]
			reason := "is invalid"
			switch fieldErr.Tag() {
			case "required":
				reason = "is required"
			case "oneof":
				reason = "must be one of [" + fieldErr.Param() + "]"
			}
			return Meta{}, &FieldError{Field: strings.ToLower(fieldErr.Field()), Reason: reason}
		}
		return Meta{}, err
	}
	return meta, nil
}
