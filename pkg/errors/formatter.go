package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldMessages maps "<json field>.<validator tag>" to the message reported for that
// failure. Failures without an entry fall back to a generic per-tag message.
type FieldMessages map[string]string

func msgForTag(tag, param string) string {
	switch tag {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		if param != "" {
			return fmt.Sprintf("Must be at least %s characters", param)
		}
		return "Value is too short or too small"
	case "max":
		if param != "" {
			return fmt.Sprintf("Must not exceed %s characters", param)
		}
		return "Value is too long or too large"
	case "len":
		return "Value must be exact length"
	case "url":
		return "Invalid URL format"
	default:
		return "Invalid value"
	}
}

func getJSONFieldName(structType reflect.Type, fieldName string) string {
	if structType == nil {
		return fieldName
	}

	field, found := structType.FieldByName(fieldName)
	if !found {
		return fieldName
	}

	jsonTag := field.Tag.Get("json")
	if jsonTag == "" {
		return fieldName
	}

	return strings.Split(jsonTag, ",")[0]
}

// FormatValidationMessages turns a binding or validator error into an ordered list of
// client-facing messages. It returns nil for errors it does not recognise.
func FormatValidationMessages(err error, model any, messages FieldMessages) []string {
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return []string{
			fmt.Sprintf("Invalid type for field %s. Expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value),
		}
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	var structType reflect.Type
	if model != nil {
		structType = reflect.TypeOf(model)
		if structType.Kind() == reflect.Ptr {
			structType = structType.Elem()
		}
	}

	result := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		jsonField := getJSONFieldName(structType, fieldError.StructField())

		if message, ok := messages[jsonField+"."+fieldError.Tag()]; ok {
			result = append(result, message)
			continue
		}

		result = append(result, fmt.Sprintf("%s: %s", jsonField, msgForTag(fieldError.Tag(), fieldError.Param())))
	}

	return result
}
