package text_http

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RequestValidator wraps the go-playground validator and implements echo.Validator.
type RequestValidator struct {
	validator *validator.Validate
}

// NewRequestValidator reports field errors under their JSON names.
func NewRequestValidator() *RequestValidator {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidators(validate)

	return &RequestValidator{validator: validate}
}

// Validate validates a struct and returns a *FieldErrors on failure.
func (v *RequestValidator) Validate(i any) error {
	err := v.validator.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return newFieldErrors(verrs)
	}
	return err
}

// FieldErrors maps JSON field names to user-facing messages.
type FieldErrors struct {
	Errors map[string]string `json:"errors"`
}

func (e *FieldErrors) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	messages := make([]string, 0, len(fields))
	for _, field := range fields {
		messages = append(messages, e.Errors[field])
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, ", "))
}

func newFieldErrors(errs validator.ValidationErrors) *FieldErrors {
	out := make(map[string]string, len(errs))
	for _, err := range errs {
		field := err.Field()
		switch err.Tag() {
		case "required", "notblank":
			out[field] = fmt.Sprintf("%s is required", field)
		case "min":
			out[field] = fmt.Sprintf("%s must be at least %s", field, err.Param())
		case "max":
			out[field] = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "oneof":
			out[field] = fmt.Sprintf("%s must be one of [%s]", field, err.Param())
		default:
			out[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return &FieldErrors{Errors: out}
}

func registerCustomValidators(validate *validator.Validate) {
	// Whitespace-only strings count as missing.
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}
