package factory

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/workdora/waitlist-api/pkg/ratelimit"
)

type Cache interface {
	Ping(ctx context.Context) error
}

type RedisClientProvider interface {
	GetClient() *redis.Client
}

// RateLimitPolicy describes one named limiter. Name scopes the limiter's keys, so two
// policies never share counters even when they see the same client IP.
type RateLimitPolicy struct {
	Name     string
	Requests int
	Window   time.Duration
	Message  string
}

type RateLimiterFactory interface {
	CreateRateLimiter(policy RateLimitPolicy) ratelimit.RateLimiter
}

// DefaultRateLimiterFactory builds Redis backed limiters when a Redis cache is available
// and exact in-memory sliding windows otherwise.
type DefaultRateLimiterFactory struct {
	redis  *redis.Client
	logger ratelimit.Logger
}

func NewDefaultRateLimiterFactory(cache Cache, logger ratelimit.Logger) *DefaultRateLimiterFactory {
	var redisClient *redis.Client
	if cache != nil {
		if provider, ok := cache.(RedisClientProvider); ok {
			redisClient = provider.GetClient()
		}
	}

	return &DefaultRateLimiterFactory{
		redis:  redisClient,
		logger: logger,
	}
}

func (f *DefaultRateLimiterFactory) CreateRateLimiter(policy RateLimitPolicy) ratelimit.RateLimiter {
	return ratelimit.NewRateLimiter(&ratelimit.RateLimitConfig{
		Requests:  policy.Requests,
		Window:    policy.Window,
		KeyPrefix: KeyPrefix(policy.Name),
		Strict:    true,
		Message:   policy.Message,
		Redis:     f.redis,
		Logger:    f.logger,
	})
}

// KeyPrefix returns the storage prefix used for a policy's counters.
func KeyPrefix(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ratelimit.DefaultKeyPrefix
	}
	return ratelimit.DefaultKeyPrefix + name + ":"
}
