package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

const (
	DefaultKeyPrefix = "ratelimit:"
	DefaultMessage   = "Too Many Requests"
)

type Logger interface {
	Error(msg string, args ...interface{})
}

func generateUniqueID() string {
	bytes := make([]byte, 8)

	rand.Read(bytes)

	return hex.EncodeToString(bytes)
}

// RateLimiter defines the strategy interface for rate limiting
type RateLimiter interface {
	GetLimitDetails() (int, time.Duration)
	IsLimited(key string) (bool, error)
	Close() error
}

// InMemoryRateLimiter implements token bucket rate limiting for single instances.
// Bursts up to the configured request count are allowed and tokens refill continuously.
type InMemoryRateLimiter struct {
	requests  int
	window    time.Duration
	keyPrefix string

	mu       sync.Mutex
	limiters map[string]*keyedLimiter
	ops      uint64
}

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewInMemoryRateLimiter(requests int, window time.Duration) *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		requests: requests,
		window:   window,
		limiters: make(map[string]*keyedLimiter),
	}
}

func (r *InMemoryRateLimiter) IsLimited(key string) (bool, error) {
	key = r.keyPrefix + normalizeKey(key)
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.limiters[key]
	if !ok {
		rps := float64(r.requests) / r.window.Seconds()
		k = &keyedLimiter{
			limiter:  rate.NewLimiter(rate.Limit(rps), r.requests),
			lastSeen: now,
		}
		r.limiters[key] = k
	} else {
		k.lastSeen = now
	}

	// Keys idle for two windows are dropped every 1024 calls.
	r.ops++
	if r.ops%1024 == 0 {
		cutoff := now.Add(-2 * r.window)
		for kKey, kVal := range r.limiters {
			if kVal.lastSeen.Before(cutoff) {
				delete(r.limiters, kKey)
			}
		}
	}

	return !k.limiter.AllowN(now, 1), nil
}

func (r *InMemoryRateLimiter) GetLimitDetails() (int, time.Duration) {
	return r.requests, r.window
}

func (r *InMemoryRateLimiter) Close() error {
	return nil
}

// SlidingWindowRateLimiter admits at most `requests` hits per key within any trailing
// window. Rejected hits are not recorded, so a client that keeps retrying is admitted
// again as soon as its oldest accepted hit leaves the window.
type SlidingWindowRateLimiter struct {
	requests  int
	window    time.Duration
	keyPrefix string
	now       func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
	ops  uint64
}

func NewSlidingWindowRateLimiter(requests int, window time.Duration) *SlidingWindowRateLimiter {
	return &SlidingWindowRateLimiter{
		requests: requests,
		window:   window,
		now:      time.Now,
		hits:     make(map[string][]time.Time),
	}
}

func (r *SlidingWindowRateLimiter) IsLimited(key string) (bool, error) {
	key = r.keyPrefix + normalizeKey(key)
	now := r.now()
	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := prune(r.hits[key], cutoff)

	r.ops++
	if r.ops%1024 == 0 {
		for k, v := range r.hits {
			if k == key {
				continue
			}
			if len(prune(v, cutoff)) == 0 {
				delete(r.hits, k)
			}
		}
	}

	if len(kept) >= r.requests {
		r.hits[key] = kept
		return true, nil
	}

	r.hits[key] = append(kept, now)
	return false, nil
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

func (r *SlidingWindowRateLimiter) GetLimitDetails() (int, time.Duration) {
	return r.requests, r.window
}

func (r *SlidingWindowRateLimiter) Close() error {
	return nil
}

// RedisRateLimiter implements sliding window rate limiting for distributed systems
type RedisRateLimiter struct {
	client    *redis.Client
	requests  int
	window    time.Duration
	keyPrefix string
	logger    Logger
}

func NewRedisRateLimiter(client *redis.Client, requests int, window time.Duration, logger Logger) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:    client,
		requests:  requests,
		window:    window,
		keyPrefix: DefaultKeyPrefix,
		logger:    logger,
	}
}

func (r *RedisRateLimiter) GetLimitDetails() (int, time.Duration) {
	return r.requests, r.window
}

// Scores are unix milliseconds so short windows stay exact.
const slidingWindowScript = `
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local expire = tonumber(ARGV[4])
	local memberId = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

	local count = redis.call('ZCARD', key)
	if count >= limit then
		return 1
	end

	redis.call('ZADD', key, now, memberId)
	redis.call('PEXPIRE', key, expire)

	return 0
`

func (r *RedisRateLimiter) IsLimited(key string) (bool, error) {
	ctx := context.Background()
	fullKey := r.keyPrefix + normalizeKey(key)
	now := time.Now().UnixMilli()
	memberID := generateUniqueID()

	result, err := r.client.Eval(ctx, slidingWindowScript, []string{fullKey},
		now, r.window.Milliseconds(), r.requests, (r.window * 2).Milliseconds(), memberID).Result()
	if err != nil {
		if r.logger != nil {
			r.logger.Error("Redis rate limit script execution failed", "key", fullKey, "error", err)
		}
		// Limiting is a security control, so failures are surfaced rather than allowed.
		return false, fmt.Errorf("rate limiter Redis error: %w", err)
	}

	limited, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("rate limiter Redis error: unexpected script result %T", result)
	}
	return limited == 1, nil
}

// The Redis client is owned by the ApplicationConfig and closed there
func (r *RedisRateLimiter) Close() error {
	return nil
}

func normalizeKey(key string) string {
	if key == "" {
		return "__empty__"
	}
	return key
}

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	// KeyPrefix namespaces the keys of one limiter from every other limiter.
	KeyPrefix string
	// Strict selects an exact sliding window for the in-memory backend instead of a
	// token bucket. The Redis backend is always a sliding window.
	Strict bool
	// Message is sent to clients when the limit is exceeded.
	Message string
	Redis   *redis.Client // Optional, if nil uses in-memory
	Logger  Logger        // Optional logger for Redis operations
}

// NewRateLimiter creates a rate limiter based on configuration
func NewRateLimiter(config *RateLimitConfig) RateLimiter {
	var limiter RateLimiter

	switch {
	case config.Redis != nil:
		r := NewRedisRateLimiter(config.Redis, config.Requests, config.Window, config.Logger)
		if config.KeyPrefix != "" {
			r.keyPrefix = config.KeyPrefix
		}
		limiter = r
	case config.Strict:
		r := NewSlidingWindowRateLimiter(config.Requests, config.Window)
		r.keyPrefix = config.KeyPrefix
		limiter = r
	default:
		r := NewInMemoryRateLimiter(config.Requests, config.Window)
		r.keyPrefix = config.KeyPrefix
		limiter = r
	}

	if config.Message != "" {
		return WithMessage(limiter, config.Message)
	}
	return limiter
}

type messageLimiter struct {
	RateLimiter
	message string
}

// WithMessage attaches the client-facing rejection message to a limiter.
func WithMessage(limiter RateLimiter, message string) RateLimiter {
	return &messageLimiter{RateLimiter: limiter, message: message}
}

// LimitMessage returns the rejection message attached with WithMessage, or DefaultMessage.
func LimitMessage(limiter RateLimiter) string {
	if m, ok := limiter.(*messageLimiter); ok && m.message != "" {
		return m.message
	}
	return DefaultMessage
}
