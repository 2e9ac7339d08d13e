package router

import (
	"net/http"

	"github.com/workdora/waitlist-api/internal/log"
	apperrors "github.com/workdora/waitlist-api/pkg/errors"
)

func GetLogger(ctx *RequestContext) *log.Logger {
	return log.GetLoggerInstanceFromContext(ctx.Request.Context(), nil)
}

func OKResult(data any, message string) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusOK,
		Data:       data,
		Message:    message,
	}
}

func CreatedResult(data any, message string) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusCreated,
		Data:       data,
		Message:    message,
	}
}

func TooManyRequestsResult(message string, data RateLimitResponse) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusTooManyRequests,
		Data:       data,
		Message:    message,
	}
}

func BadRequestResult(message string, errors []string) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Errors:     errors,
	}
}

func NotFoundResult(message string) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusNotFound,
		Message:    message,
	}
}

func InternalServerErrorResult(message string) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
	}
}

func ConflictResult(message string) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusConflict,
		Message:    message,
	}
}

func ErrorResult(statusCode int, message string, data any) *ServiceResult {
	return &ServiceResult{
		StatusCode: statusCode,
		Data:       data,
		Message:    message,
	}
}

// AppErrorResult renders an application error. 4xx messages and validation details are
// passed through; anything that maps to 5xx is logged and replaced by fallback.
func AppErrorResult(ctx *RequestContext, err error, fallback string) *ServiceResult {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		GetLogger(ctx).Error("Request failed", "error", err, "path", ctx.FullPath())
	}

	return &ServiceResult{
		StatusCode: status,
		Message:    apperrors.PublicMessage(err, fallback),
		Errors:     apperrors.GetDetails(err),
	}
}
