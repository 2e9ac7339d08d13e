package constants

import "time"

// RFC 3339 date-time format string.
// Use this format for all date-time serialization and communication with external systems.
const RFC3339DateTimeFormat = "2006-01-02T15:04:05Z07:00"

// Global rate limiting applied to every route.
const (
	DefaultRateLimitRequests      = 100
	DefaultRateLimitWindowMinutes = 1
)

// DefaultRateLimitWindow returns the default rate limit window duration
func DefaultRateLimitWindow() time.Duration {
	return time.Duration(DefaultRateLimitWindowMinutes) * time.Minute
}

// Waitlist submissions are limited per client IP.
const (
	DefaultSubmissionRateLimitRequests = 3
	DefaultSubmissionRateLimitWindow   = 15 * time.Minute
)

// Stats responses are cached briefly and dropped whenever a signup lands.
const DefaultStatsCacheTTL = 30 * time.Second

// Startup storage connections back off exponentially between attempts.
const (
	DefaultStorageConnectAttempts  = 5
	DefaultStorageConnectBaseDelay = 500 * time.Millisecond
	DefaultStorageConnectMaxDelay  = 5 * time.Second
)

const (
	DefaultAppPort       = "5000"
	DefaultFrontendURL   = "http://localhost:5173"
	DefaultMongoDatabase = "workdora_waitlist"
)
