package errors

import (
	"errors"
)

func HTTPStatusCode(err error) int {
	if err == nil {
		return StatusInternalServerError
	}

	switch GetErrorType(err) {
	case ErrorTypeValidation, ErrorTypeInvalidRequest:
		return StatusBadRequest
	case ErrorTypeNotFound:
		return StatusNotFound
	case ErrorTypeConflict:
		return StatusConflict
	case ErrorTypeRateLimitExceeded:
		return StatusTooManyRequests
	case ErrorTypeRequestTimeout:
		return StatusRequestTimeout
	default:
		return StatusInternalServerError
	}
}

func GetHumanReadableMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}

	// SECURITY: avoid leaking internal error strings (DB errors, stack messages, etc.)
	return "An unexpected error occurred"
}

// PublicMessage returns the client-facing message for err. Server-side failures are
// replaced by fallback so storage details never reach the response.
func PublicMessage(err error, fallback string) string {
	if HTTPStatusCode(err) >= StatusInternalServerError {
		return fallback
	}
	return GetHumanReadableMessage(err)
}
