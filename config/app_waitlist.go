package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/workdora/waitlist-api/pkg/constants"
	"github.com/workdora/waitlist-api/pkg/utils"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMongo    = "mongo"
)

type WaitlistConfig struct {
	StorageDriver               string
	SubmissionRateLimitRequests int
	SubmissionRateLimitWindow   time.Duration
	StatsCacheTTL               time.Duration
}

func NewWaitlistConfig() *WaitlistConfig {
	return &WaitlistConfig{
		StorageDriver:               strings.ToLower(utils.GetEnvTrimmedOrDefault("STORAGE_DRIVER", StorageDriverPostgres)),
		SubmissionRateLimitRequests: utils.GetEnvPositiveInt("SUBMISSION_RATE_LIMIT_REQUESTS", constants.DefaultSubmissionRateLimitRequests),
		SubmissionRateLimitWindow:   utils.GetEnvPositiveDuration("SUBMISSION_RATE_LIMIT_WINDOW", constants.DefaultSubmissionRateLimitWindow),
		StatsCacheTTL:               utils.GetEnvPositiveDuration("STATS_CACHE_TTL", constants.DefaultStatsCacheTTL),
	}
}

func (wc *WaitlistConfig) Validate() error {
	switch wc.StorageDriver {
	case StorageDriverPostgres, StorageDriverMongo:
		return nil
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q (allowed: %s, %s)", wc.StorageDriver, StorageDriverPostgres, StorageDriverMongo)
	}
}
