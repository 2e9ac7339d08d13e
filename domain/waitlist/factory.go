package waitlist

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/workdora/waitlist-api/config"
	"github.com/workdora/waitlist-api/config/router"
)

const indexTimeout = 10 * time.Second

type WaitlistServiceFactory interface {
	CreateRepository(ctx context.Context) (WaitlistRepository, error)
	CreateService(ctx context.Context, metrics prometheus.Registerer) (WaitlistService, error)
	CreateController(ctx context.Context) (*router.RESTController, error)
}

// DefaultWaitlistServiceFactory picks the repository matching the configured storage
// driver and wires the stats cache and submission limit from the application config.
type DefaultWaitlistServiceFactory struct {
	app *config.ApplicationConfig
}

func NewWaitlistServiceFactory(app *config.ApplicationConfig) WaitlistServiceFactory {
	return &DefaultWaitlistServiceFactory{app: app}
}

func (f *DefaultWaitlistServiceFactory) CreateRepository(ctx context.Context) (WaitlistRepository, error) {
	switch f.settings().StorageDriver {
	case config.StorageDriverMongo:
		if f.app.MongoDB == nil {
			return nil, fmt.Errorf("storage driver %q selected but no mongo database is connected", config.StorageDriverMongo)
		}

		repo := NewMongoWaitlistRepository(f.app.MongoDB)

		ctx, cancel := context.WithTimeout(ctx, indexTimeout)
		defer cancel()
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure waitlist indexes: %w", err)
		}
		return repo, nil

	default:
		if f.app.DB == nil {
			return nil, fmt.Errorf("storage driver %q selected but no database is connected", f.settings().StorageDriver)
		}
		return NewWaitlistRepository(f.app.DB), nil
	}
}

func (f *DefaultWaitlistServiceFactory) CreateService(ctx context.Context, metrics prometheus.Registerer) (WaitlistService, error) {
	repository, err := f.CreateRepository(ctx)
	if err != nil {
		return nil, err
	}

	cfg := f.serviceConfig()
	cfg.Metrics = metrics
	return NewWaitlistService(f.app.Logger, repository, &cfg), nil
}

func (f *DefaultWaitlistServiceFactory) CreateController(ctx context.Context) (*router.RESTController, error) {
	repository, err := f.CreateRepository(ctx)
	if err != nil {
		return nil, err
	}

	settings := f.settings()
	return NewWaitlistController(f.app.Logger, repository, &ControllerConfig{
		Service:         f.serviceConfig(),
		SubmissionLimit: SubmissionPolicy(settings.SubmissionRateLimitRequests, settings.SubmissionRateLimitWindow),
	}), nil
}

func (f *DefaultWaitlistServiceFactory) serviceConfig() ServiceConfig {
	cfg := ServiceConfig{StatsCacheTTL: f.settings().StatsCacheTTL}
	if f.app.Cache != nil {
		cfg.Cache = f.app.Cache
	}
	return cfg
}

func (f *DefaultWaitlistServiceFactory) settings() *config.WaitlistConfig {
	if f.app.Waitlist == nil {
		f.app.Waitlist = config.NewWaitlistConfig()
	}
	return f.app.Waitlist
}
