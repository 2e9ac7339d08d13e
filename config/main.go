package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/workdora/waitlist-api/config/router"
	"github.com/workdora/waitlist-api/internal/log"
	"github.com/workdora/waitlist-api/internal/models"
	"github.com/workdora/waitlist-api/pkg/constants"
	"github.com/workdora/waitlist-api/pkg/retry"
	"github.com/workdora/waitlist-api/pkg/utils"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"gorm.io/gorm"
)

// ErrNoDatabase is returned by PingDatabase when no storage handle is connected.
var ErrNoDatabase = errors.New("no database connected")

type ApplicationConfig struct {
	// DB is set when STORAGE_DRIVER=postgres, Mongo and MongoDB when it is mongo.
	DB              *gorm.DB
	Mongo           *mongo.Client
	MongoDB         *mongo.Database
	RouterService   *router.RouterService
	Logger          *log.Logger
	Cache           Cache
	Config          *AppConfig
	Waitlist        *WaitlistConfig
	TracingShutdown func(context.Context) error
}

type AppConfig struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RequestTimeout    time.Duration
}

func NewAppConfig() *AppConfig {
	return &AppConfig{
		RateLimitRequests: utils.GetEnvPositiveInt("RATE_LIMIT_REQUESTS", constants.DefaultRateLimitRequests),
		RateLimitWindow:   utils.GetEnvPositiveDuration("RATE_LIMIT_WINDOW", constants.DefaultRateLimitWindow()),
		RequestTimeout:    utils.GetEnvPositiveDuration("REQUEST_TIMEOUT", router.DefaultTimeoutDuration),
	}
}

// PingDatabase checks whichever store the application is running on.
func (ac *ApplicationConfig) PingDatabase(ctx context.Context) error {
	switch {
	case ac.MongoDB != nil && ac.Mongo != nil:
		return ac.Mongo.Ping(ctx, readpref.Primary())
	case ac.DB != nil:
		sqlDB, err := ac.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	default:
		return ErrNoDatabase
	}
}

// DatabaseName is the storage driver reported by health checks.
func (ac *ApplicationConfig) DatabaseName() string {
	if ac.Waitlist == nil {
		return StorageDriverPostgres
	}
	return ac.Waitlist.StorageDriver
}

func (ac *ApplicationConfig) Cleanup() {
	if ac.TracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ac.TracingShutdown(ctx); err != nil {
			ac.Logger.Error("Failed to shutdown tracer provider", "error", err)
		}
	}

	if ac.DB != nil {
		CloseDatabase(ac.DB, ac.Logger)
	}

	if ac.Mongo != nil {
		CloseMongo(ac.Mongo, ac.Logger)
	}

	if ac.RouterService != nil {
		ac.RouterService.Cleanup()
	}

	if ac.Cache != nil {
		CloseCache(ac.Cache, ac.Logger)
	}

	ac.Logger.Info("Application cleanup completed")
}

func LoadApplicationConfiguration(logger *log.Logger, autoMigrate bool) (*ApplicationConfig, error) {
	InitializeEnvFile(logger)

	waitlistConfig := NewWaitlistConfig()
	if err := waitlistConfig.Validate(); err != nil {
		logger.Error("Invalid waitlist configuration", "error", err)
		return nil, err
	}

	if autoMigrate {
		appEnv := GetAppEnv()
		if err := ValidateAutoMigrateAllowed(appEnv); err != nil {
			return nil, err
		}
		if appEnv == "" {
			logger.Warn("APP_ENV not set; allowing --auto-migrate as development")
		}
	}

	tracingShutdown, err := SetupTracing(logger, nil)
	if err != nil {
		return nil, err
	}

	appConfig := &ApplicationConfig{
		Logger:          logger,
		Waitlist:        waitlistConfig,
		TracingShutdown: tracingShutdown,
	}

	if err := appConfig.connectStorage(autoMigrate); err != nil {
		appConfig.Cleanup()
		return nil, err
	}

	appConfig.Config = NewAppConfig()
	appConfig.Cache = NewCacheConfig().NewCacheOrNil(logger)

	appConfig.RouterService = router.CreateRouterService(logger, appConfig.Cache, &router.RouterConfig{
		RateLimitRequests: appConfig.Config.RateLimitRequests,
		RateLimitWindow:   appConfig.Config.RateLimitWindow,
		RequestTimeout:    appConfig.Config.RequestTimeout,
	})

	logger.Info("Application configuration loaded successfully", "storage_driver", waitlistConfig.StorageDriver)

	return appConfig, nil
}

// LoadStorageConfiguration connects only the storage handle and cache, for tools that
// read the waitlist without serving HTTP.
func LoadStorageConfiguration(logger *log.Logger) (*ApplicationConfig, error) {
	InitializeEnvFile(logger)

	waitlistConfig := NewWaitlistConfig()
	if err := waitlistConfig.Validate(); err != nil {
		return nil, err
	}

	appConfig := &ApplicationConfig{
		Logger:   logger,
		Waitlist: waitlistConfig,
	}
	if err := appConfig.connectStorage(false); err != nil {
		return nil, err
	}
	appConfig.Cache = NewCacheConfig().NewCacheOrNil(logger)

	return appConfig, nil
}

// NewStorageRetryConfig reads STORAGE_CONNECT_ATTEMPTS. Only transient network failures
// (refused, reset, timeout) are retried; configuration errors fail on the first attempt.
func NewStorageRetryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts: utils.GetEnvPositiveInt("STORAGE_CONNECT_ATTEMPTS", constants.DefaultStorageConnectAttempts),
		BaseDelay:   constants.DefaultStorageConnectBaseDelay,
		MaxDelay:    constants.DefaultStorageConnectMaxDelay,
		Multiplier:  2,
	}
}

// connectWithBackoff runs connect until it succeeds, fails permanently or runs out of attempts.
func connectWithBackoff(logger *log.Logger, target string, cfg *retry.Config, connect func() error) error {
	attempt := 0
	err := retry.NewExponentialBackoff(cfg).Execute(func() error {
		attempt++
		err := connect()
		if err != nil {
			logger.Warn("Storage connection attempt failed", "target", target, "attempt", attempt, "error", err.Error())
		}
		return err
	})
	if retry.IsMaxRetriesExceeded(err) {
		return fmt.Errorf("connect %s after %d attempts: %w", target, attempt, errors.Unwrap(err))
	}
	return err
}

func (ac *ApplicationConfig) connectStorage(autoMigrate bool) error {
	retryConfig := NewStorageRetryConfig()

	if ac.Waitlist.StorageDriver == StorageDriverMongo {
		if autoMigrate {
			ac.Logger.Info("--auto-migrate has no effect with the mongo driver; indexes are ensured at startup")
		}

		mongoConfig := NewMongoConfig()
		return connectWithBackoff(ac.Logger, StorageDriverMongo, retryConfig, func() error {
			client, db, err := NewMongoDatabase(context.Background(), ac.Logger, mongoConfig)
			if err != nil {
				return err
			}
			ac.Mongo = client
			ac.MongoDB = db
			return nil
		})
	}

	err := connectWithBackoff(ac.Logger, StorageDriverPostgres, retryConfig, func() error {
		db, err := NewDatabase(ac.Logger, nil)
		if err != nil {
			return err
		}
		ac.DB = db
		return nil
	})
	if err != nil {
		return err
	}

	if autoMigrate {
		return AutoMigrate(ac.Logger, ac.DB, models.ModelRegistry...)
	}
	return nil
}
