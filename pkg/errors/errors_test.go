package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"validation": {NewValidationError("Validation failed", []string{"x"}), StatusBadRequest},
		"invalid":    {NewInvalidRequestError("bad", nil), StatusBadRequest},
		"not found":  {NewNotFoundError("missing", nil), StatusNotFound},
		"conflict":   {NewConflictError("dup", nil), StatusConflict},
		"rate limit": {NewRateLimitError("slow down"), StatusTooManyRequests},
		"database":   {NewDatabaseError("db", errors.New("conn refused")), StatusInternalServerError},
		"plain":      {errors.New("boom"), StatusInternalServerError},
		"nil":        {nil, StatusInternalServerError},
		"wrapped":    {fmt.Errorf("ctx: %w", NewConflictError("dup", nil)), StatusConflict},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatusCode(tc.err))
		})
	}
}

func TestPublicMessage_HidesServerErrors(t *testing.T) {
	dbErr := NewDatabaseError("unable to create waitlist entry", errors.New("pq: connection reset"))
	assert.Equal(t, "generic", PublicMessage(dbErr, "generic"))

	conflict := NewConflictError("Email already exists in our waitlist", nil)
	assert.Equal(t, "Email already exists in our waitlist", PublicMessage(conflict, "generic"))
}

func TestGetDetails(t *testing.T) {
	err := NewValidationError("Validation failed", []string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, GetDetails(fmt.Errorf("wrap: %w", err)))
	assert.Nil(t, GetDetails(errors.New("plain")))
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.True(t, IsDuplicateKeyError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_waitlist_entries_email"`)))
	assert.True(t, IsDuplicateKeyError(errors.New("UNIQUE constraint failed: waitlist_entries.email")))
	assert.True(t, IsDuplicateKeyError(errors.New("E11000 duplicate key error collection: waitlistusers")))
	assert.False(t, IsDuplicateKeyError(errors.New("connection refused")))
	assert.False(t, IsDuplicateKeyError(nil))
}

type signup struct {
	Name  string `json:"name" validate:"required,min=2"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"max=3"`
}

func TestFormatValidationMessages_UsesOverridesInFieldOrder(t *testing.T) {
	v := validator.New()
	err := v.Struct(&signup{Name: "a", Email: "nope", Phone: "12345"})

	messages := FormatValidationMessages(err, &signup{}, FieldMessages{
		"name.min":    "Name too short",
		"email.email": "Bad email",
	})

	assert.Equal(t, []string{"Name too short", "Bad email", "phone: Must not exceed 3 characters"}, messages)
}

func TestFormatValidationMessages_TypeError(t *testing.T) {
	var payload signup
	err := json.Unmarshal([]byte(`{"name": 42}`), &payload)

	messages := FormatValidationMessages(err, &payload, nil)

	assert.Len(t, messages, 1)
	assert.Contains(t, messages[0], "Invalid type for field name")
}

func TestFormatValidationMessages_UnknownError(t *testing.T) {
	assert.Nil(t, FormatValidationMessages(errors.New("unexpected EOF"), nil, nil))
	assert.Nil(t, FormatValidationMessages(nil, nil, nil))
}
