package utils

const defaultServiceName = "waitlist-api"

// IsTracingEnabled is off unless OTEL_TRACES_ENABLED parses as true.
func IsTracingEnabled() bool {
	return GetEnvBool("OTEL_TRACES_ENABLED", false)
}

func OTelServiceName() string {
	return GetEnvTrimmedOrDefault("OTEL_SERVICE_NAME", defaultServiceName)
}
