package log

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestContextWithCorrelationID_KeepsValidInboundID(t *testing.T) {
	ctx, id := ContextWithCorrelationID(context.Background(), "req-123.abc_9")

	assert.Equal(t, "req-123.abc_9", id)
	assert.Equal(t, id, GetOrGenerateCorrelationID(ctx))
}

func TestContextWithCorrelationID_ReplacesUnsafeInboundID(t *testing.T) {
	for _, inbound := range []string{"", "bad id", "x\ny", strings.Repeat("a", 200)} {
		_, id := ContextWithCorrelationID(context.Background(), inbound)
		assert.NotEqual(t, inbound, id)
		assert.Len(t, id, 36)
	}
}

func TestGetLoggerInstanceFromContext_PrefersInjectedLogger(t *testing.T) {
	injected := NewLoggerWithJSONOutput()
	ctx := ContextWithLogger(context.Background(), injected)

	assert.Same(t, injected, GetLoggerInstanceFromContext(ctx, nil))
	assert.NotNil(t, GetLoggerInstanceFromContext(context.Background(), injected))
}
