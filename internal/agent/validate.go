package agent

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs validator tags over the input and converts failures to
// field-level errors. Inputs without tags pass trivially.
func ValidateStruct(v any) []FieldError {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return []FieldError{{Field: "", Message: "input is nil"}}
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	err := structValidator.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("failed %q validation", fe.Tag()),
		})
	}
	return out
}

// ValidationError folds field errors into the normalized error shape.
// Validation failures are never retryable.
func ValidationError(agentName string, fields []FieldError) *Error {
	msg := "input validation failed"
	if len(fields) > 0 {
		msg = fmt.Sprintf("input validation failed: %s: %s", fields[0].Field, fields[0].Message)
	}
	return NewError(agentName, CodeValidation, msg, nil, false)
}
