package log

import (
	"context"
	"strings"
)

// CorrelationIDHeader is read from inbound requests and echoed on responses.
const CorrelationIDHeader = "X-Correlation-ID"

const maxCorrelationIDLength = 128

// ContextWithCorrelationID stores a sanitized inbound id, or a fresh one, in ctx.
func ContextWithCorrelationID(ctx context.Context, inbound string) (context.Context, string) {
	id := sanitizeCorrelationID(inbound)
	if id == "" {
		id = GenerateCorrelationID()
	}
	return context.WithValue(ctx, CorrelatedIDKey, id), id
}

// ContextWithLogger attaches a logger for GetLoggerInstanceFromContext.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerKeyForContext, logger)
}

// Inbound ids are client controlled; anything outside [A-Za-z0-9._-] or over
// maxCorrelationIDLength is discarded.
func sanitizeCorrelationID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxCorrelationIDLength {
		return ""
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return ""
		}
	}
	return id
}
