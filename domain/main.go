package domain

import (
	"context"

	"github.com/workdora/waitlist-api/config"
	"github.com/workdora/waitlist-api/domain/monitoring"
	"github.com/workdora/waitlist-api/domain/waitlist"
)

func SetupCoreDomain(ctx context.Context, appConfig *config.ApplicationConfig) error {
	appConfig.RouterService.MountController(monitoring.NewMonitoringController(appConfig, appConfig.Logger, appConfig.Cache))

	waitlistController, err := waitlist.NewWaitlistServiceFactory(appConfig).CreateController(ctx)
	if err != nil {
		return err
	}
	appConfig.RouterService.MountController(waitlistController)

	return nil
}
