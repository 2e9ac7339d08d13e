package router

import (
	"github.com/gin-gonic/gin"
)

type RequestContext = gin.Context

type MiddlewareFunc = gin.HandlerFunc

// ServiceResult is rendered as {success, message?, data?, errors?}. StatusCode only
// selects the HTTP status and is not part of the body. Fields are extra top-level keys;
// they never replace the envelope keys.
type ServiceResult struct {
	StatusCode int            `json:"-"`
	Data       any            `json:"data,omitempty"`
	Message    string         `json:"message,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
	Fields     map[string]any `json:"-"`
}

type RateLimitResponse struct {
	Limit      int    `json:"limit"`
	Window     string `json:"window"`
	RetryAfter string `json:"retry_after"`
}

type HandlerFunction func(*RequestContext) *ServiceResult

type RESTController struct {
	name         string
	mountPoint   string
	handlerCount int
	prepare      func(*RouterService, *RESTController)
}

// WithField adds a top-level key next to data.
func (result *ServiceResult) WithField(key string, value any) *ServiceResult {
	if result.Fields == nil {
		result.Fields = make(map[string]any)
	}
	result.Fields[key] = value
	return result
}

func (result *ServiceResult) ToJSON() gin.H {
	body := gin.H{}
	for key, value := range result.Fields {
		body[key] = value
	}
	body["success"] = result.IsSuccess()

	if result.Message != "" {
		body["message"] = result.Message
	}
	if result.Data != nil {
		body["data"] = result.Data
	}
	if len(result.Errors) > 0 {
		body["errors"] = result.Errors
	}

	return body
}

func (result *ServiceResult) IsSuccess() bool {
	return result.StatusCode >= 200 && result.StatusCode < 300
}

func (result *ServiceResult) IsError() bool {
	return result.StatusCode >= 400
}
