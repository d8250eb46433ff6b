// Package validation wraps go-playground/validator with the field messages
// returned to API clients.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var ErrInvalid = errors.New("validation failed")

// Error describes the first failing field of a payload.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return ErrInvalid
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Struct validates v against its `validate` tags and returns an *Error for
// the first failing field.
func Struct(v any) error {
	err := get().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &Error{Field: fe.Field(), Message: message(fe)}
	}
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}

var formatters = map[string]func(field, param string) string{
	"required": func(field, _ string) string { return fmt.Sprintf("%s is required", field) },
	"max":      func(field, param string) string { return fmt.Sprintf("%s must be at most %s characters", field, param) },
	"min":      func(field, param string) string { return fmt.Sprintf("%s must be at least %s characters", field, param) },
	"len":      func(field, param string) string { return fmt.Sprintf("%s must be exactly %s characters", field, param) },
	"email":    func(field, _ string) string { return fmt.Sprintf("%s must be a valid email address", field) },
	"url":      func(field, _ string) string { return fmt.Sprintf("%s must be a valid URL", field) },
	"oneof":    func(field, param string) string { return fmt.Sprintf("%s must be one of [%s]", field, param) },
	"numeric":  func(field, _ string) string { return fmt.Sprintf("%s must contain only digits", field) },
	"alphanum": func(field, _ string) string { return fmt.Sprintf("%s must be alphanumeric", field) },
	"uuid":     func(field, _ string) string { return fmt.Sprintf("%s must be a valid UUID", field) },
	"gte":      func(field, param string) string { return fmt.Sprintf("%s must be at least %s", field, param) },
	"lte":      func(field, param string) string { return fmt.Sprintf("%s must be at most %s", field, param) },
	"required_without_all": func(_, param string) string {
		return fmt.Sprintf("at least one of %s is required", strings.Join(strings.Fields(param), ", "))
	},
}

func message(fe validator.FieldError) string {
	if f, ok := formatters[fe.Tag()]; ok {
		return f(fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
