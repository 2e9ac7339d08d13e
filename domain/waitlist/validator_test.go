package waitlist

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/workdora/waitlist-api/pkg/errors"
)

func validRequest() *CreateWaitlistEntryRequest {
	return &CreateWaitlistEntryRequest{
		Name:  "Ada Lovelace",
		Email: "ada@example.com",
	}
}

func violations(t *testing.T, err error) []string {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetErrorType(err))
	return apperrors.GetDetails(err)
}

func TestSubmissionValidator_AcceptsMinimalRequest(t *testing.T) {
	assert.NoError(t, NewSubmissionValidator().Validate(validRequest()))
}

func TestSubmissionValidator_ReportsEveryViolationInOrder(t *testing.T) {
	req := &CreateWaitlistEntryRequest{
		ToolsUsed:      json.RawMessage(`"Slack"`),
		DesiredChanges: strings.Repeat("x", 501),
	}

	got := violations(t, NewSubmissionValidator().Validate(req))

	assert.Equal(t, []string{
		"Name is required",
		"Email is required",
		"Tools used must be an array",
		"Desired changes cannot exceed 500 characters",
	}, got)
}

func TestSubmissionValidator_NameLength(t *testing.T) {
	v := NewSubmissionValidator()

	for _, name := range []string{"A", strings.Repeat("n", 101)} {
		req := validRequest()
		req.Name = name
		assert.Equal(t, []string{"Name must be between 2 and 100 characters"}, violations(t, v.Validate(req)))
	}

	req := validRequest()
	req.Name = strings.Repeat("é", 100)
	assert.NoError(t, v.Validate(req), "length is counted in characters, not bytes")
}

func TestSubmissionValidator_InvalidEmail(t *testing.T) {
	req := validRequest()
	req.Email = "not-an-email"

	assert.Equal(t, []string{"Please provide a valid email"}, violations(t, NewSubmissionValidator().Validate(req)))
}

func TestSubmissionValidator_ToolsUsed(t *testing.T) {
	v := NewSubmissionValidator()

	accepted := []string{`null`, `false`, `0`, `""`, `[]`, `["Slack","Harvest"]`, `[1,2]`, `["Slack",true]`}
	for _, raw := range accepted {
		req := validRequest()
		req.ToolsUsed = json.RawMessage(raw)
		assert.NoError(t, v.Validate(req), raw)
	}

	rejected := []string{`"Slack"`, `true`, `1`, `{"tool":"Slack"}`, `[1,2`}
	for _, raw := range rejected {
		req := validRequest()
		req.ToolsUsed = json.RawMessage(raw)
		assert.Equal(t, []string{"Tools used must be an array"}, violations(t, v.Validate(req)), raw)
	}

	badElements := []string{`[{"tool":"Slack"}]`, `["Slack",null]`, `[["Slack"]]`}
	for _, raw := range badElements {
		req := validRequest()
		req.ToolsUsed = json.RawMessage(raw)
		assert.Equal(t, []string{"Each tool must be a string"}, violations(t, v.Validate(req)), raw)
	}
}

func TestSubmissionValidator_DesiredChangesBoundary(t *testing.T) {
	req := validRequest()
	req.DesiredChanges = strings.Repeat("d", 500)

	assert.NoError(t, NewSubmissionValidator().Validate(req))
}

func TestCreateWaitlistEntryRequest_Tools(t *testing.T) {
	req := validRequest()
	assert.Nil(t, req.Tools())

	req.ToolsUsed = json.RawMessage(`false`)
	assert.Nil(t, req.Tools())

	req.ToolsUsed = json.RawMessage(`["Slack", "Notion"]`)
	assert.Equal(t, []string{"Slack", "Notion"}, req.Tools())

	req.ToolsUsed = json.RawMessage(`[1, 2.5, false]`)
	assert.Equal(t, []string{"1", "2.5", "false"}, req.Tools())

	req.ToolsUsed = json.RawMessage(`[]`)
	assert.Empty(t, req.Tools())
}
