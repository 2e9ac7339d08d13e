package waitlist

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/workdora/waitlist-api/pkg/errors"
)

var submissionMessages = apperrors.FieldMessages{
	"name.required":       "Name is required",
	"name.min":            "Name must be between 2 and 100 characters",
	"name.max":            "Name must be between 2 and 100 characters",
	"email.required":      "Email is required",
	"email.email":         "Please provide a valid email",
	"toolsUsed.toolarray": "Tools used must be an array",
	"toolsUsed.toolnames": "Each tool must be a string",
	"desiredChanges.max":  "Desired changes cannot exceed 500 characters",
}

// SubmissionValidator checks signup payloads and reports every violation in field order.
type SubmissionValidator struct {
	validate *validator.Validate
}

func NewSubmissionValidator() *SubmissionValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("toolarray", validateToolArray); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("toolnames", validateToolNames); err != nil {
		panic(err)
	}
	return &SubmissionValidator{validate: v}
}

// Validate returns nil or a VALIDATION_ERROR whose details list the violations.
func (sv *SubmissionValidator) Validate(req *CreateWaitlistEntryRequest) error {
	if req == nil {
		req = &CreateWaitlistEntryRequest{}
	}

	err := sv.validate.Struct(req)
	if err == nil {
		return nil
	}

	messages := apperrors.FormatValidationMessages(err, req, submissionMessages)
	if len(messages) == 0 {
		return apperrors.NewInternalServerError("unable to validate submission", err)
	}
	return apperrors.NewValidationError("Validation failed", messages)
}

// validateToolArray accepts any JSON array and any falsy JSON value
// (null, false, 0, ""), which counts as "not provided".
func validateToolArray(fl validator.FieldLevel) bool {
	raw, ok := fl.Field().Interface().(json.RawMessage)
	if !ok {
		return false
	}
	if isFalsyJSON(raw) {
		return true
	}
	_, ok = toolElements(raw)
	return ok
}

// validateToolNames runs after toolarray and rejects elements with no text form.
// Numbers and booleans are stored as their text.
func validateToolNames(fl validator.FieldLevel) bool {
	raw, ok := fl.Field().Interface().(json.RawMessage)
	if !ok {
		return false
	}

	elements, ok := toolElements(raw)
	if !ok {
		return true
	}
	for _, element := range elements {
		if _, ok := toolName(element); !ok {
			return false
		}
	}
	return true
}

func isFalsyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return true
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return false
	}

	switch value := v.(type) {
	case nil:
		return true
	case bool:
		return !value
	case float64:
		return value == 0
	case string:
		return value == ""
	default:
		return false
	}
}

func toolElements(raw json.RawMessage) ([]any, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var elements []any
	if err := decoder.Decode(&elements); err != nil {
		return nil, false
	}
	return elements, true
}

func toolName(element any) (string, bool) {
	switch value := element.(type) {
	case string:
		return value, true
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return value.String(), true
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(value), true
	default:
		return "", false
	}
}
