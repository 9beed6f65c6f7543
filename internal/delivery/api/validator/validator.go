// Package validator adapts go-playground/validator to echo and to the domain
// InputValidator port. Every violated field is reported at once.
package validator

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	domainerrors "rssauth/internal/domain/errors"
	"rssauth/internal/domain/service"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Validator implements echo.Validator and service.InputValidator.
type Validator struct {
	validate *validator.Validate
}

// New builds a Validator that reports fields by their json names.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}

		return name
	})

	return &Validator{validate: v}
}

// NewInputValidator exposes New through the domain port for fx.
func NewInputValidator() service.InputValidator {
	return New()
}

// Validate checks input against its `validate` struct tags.
func (v *Validator) Validate(input any) error {
	err := v.validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(err, "validate input")
	}

	fields := make([]domainerrors.FieldError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, domainerrors.FieldError{
			Field:   fe.Field(),
			Message: message(fe),
		})
	}

	return domainerrors.NewValidationError(fields...)
}

func message(fe validator.FieldError) string {
	label := capitalize(fe.Field())

	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Invalid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	default:
		return label + " is invalid"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])

	return string(runes)
}
