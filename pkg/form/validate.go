package form

import (
	"fmt"
	"strings"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ByField indexes the errors by field ID
func (e ValidationErrors) ByField() map[string]string {
	out := make(map[string]string, len(e))
	for _, err := range e {
		out[err.Field] = err.Message
	}
	return out
}

// MsgRequired is reported for required fields left empty
const MsgRequired = "required field"

// Validate returns the error message of every invalid field keyed by field ID.
// A field is invalid only when it is required and its value is empty.
func Validate(fields []Field, values *Values) map[string]string {
	return ValidateAll(fields, values).ByField()
}

// ValidateAll is Validate returning the errors in field order
func ValidateAll(fields []Field, values *Values) ValidationErrors {
	var errs ValidationErrors
	for _, f := range fields {
		if !f.Type.Known() || !f.Required {
			continue
		}
		var v Value
		if values != nil {
			v, _ = values.Get(f.ID)
		}
		if IsEmptyValue(v) {
			errs = append(errs, ValidationError{Field: f.ID, Message: MsgRequired})
		}
	}
	return errs
}
