// Package validation validates request structs with validator/v10 and
// converts failures into domain validation errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	apperrors "family-calendar-backend/internal/errors"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// Validator wraps go-playground/validator with domain error conversion
type Validator struct {
	v *validator.Validate
}

// New creates a validator that reports fields by their JSON names
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", validators.NotBlank)

	return &Validator{v: v}
}

// Validate validates a struct and returns a domain validation error
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return formatError(err)
	}
	return nil
}

func formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return apperrors.Validation(err.Error())
	}

	fields := make(map[string]string, len(validationErrs))
	var first string
	for _, e := range validationErrs {
		msg := friendlyMessage(e)
		if first == "" {
			first = e.Field() + " " + msg
		}
		fields[e.Field()] = msg
	}
	return apperrors.ValidationWithDetails(first, fields)
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "notblank":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid", "uuid4":
		return "must be a valid id"
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}
