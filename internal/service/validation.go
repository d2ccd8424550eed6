package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// fieldPath "Input.stops[2].location.id" -> "stops.2.location.id"
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		namespace = rest
	}
	return indexPattern.ReplaceAllString(namespace, ".$1")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Is required"
	case "min":
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.String {
			return fmt.Sprintf("Must have at least %s items", fe.Param())
		}
		return "Must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Must be at most %s characters", fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("Must have at most %s items", fe.Param())
		}
		return "Must be at most " + fe.Param()
	case "email":
		return "Must be a valid email"
	case "oneof":
		return "Must be one of: " + fe.Param()
	case "timezone":
		return "Must be a valid time zone"
	default:
		return "Is invalid"
	}
}

// validateInput проверяет теги validate и собирает ошибки полей
func validateInput(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fieldError(fieldPath(fe.Namespace()), fieldMessage(fe)))
	}
	return invalid(fields...)
}
