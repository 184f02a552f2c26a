package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the struct's validate tags and reports the first failure
// as a validation error with a readable message.
func validateStruct(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return validationError("invalid request")
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return validationError(fmt.Sprintf("%s is required", field))
	case "email":
		return validationError(fmt.Sprintf("%s must be a valid email address", field))
	case "min":
		if fe.Kind() == reflect.String {
			return validationError(fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		}
		return validationError(fmt.Sprintf("%s must be at least %s", field, fe.Param()))
	case "gte":
		return validationError(fmt.Sprintf("%s must not be negative", field))
	case "gt":
		return validationError(fmt.Sprintf("%s must be greater than %s", field, fe.Param()))
	case "oneof":
		return validationError(fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", ")))
	default:
		return validationError(fmt.Sprintf("%s is invalid", field))
	}
}
