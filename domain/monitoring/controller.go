package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/workdora/waitlist-api/config/router"
	"github.com/workdora/waitlist-api/internal/log"
)

const (
	healthMessage = "Workdora Waitlist API is running"
	pingTimeout   = 2 * time.Second

	statusConnected     = "connected"
	statusDisconnected  = "disconnected"
	statusNotConfigured = "not_configured"
)

// DatabaseHandle is the storage handle the application runs on.
type DatabaseHandle interface {
	PingDatabase(ctx context.Context) error
	DatabaseName() string
}

type Cache interface {
	Ping(ctx context.Context) error
}

type HealthStatus struct {
	Timestamp string `json:"timestamp"`
	Database  string `json:"database"`
	Driver    string `json:"driver"`
	Cache     string `json:"cache"`
	Uptime    int    `json:"uptime"` // seconds
}

type MonitoringController struct {
	database  DatabaseHandle
	logger    *log.Logger
	cache     Cache
	startTime time.Time
	now       func() time.Time
}

func NewMonitoringController(database DatabaseHandle, logger *log.Logger, cache Cache) *router.RESTController {
	ctrl := &MonitoringController{
		database:  database,
		logger:    logger,
		cache:     cache,
		startTime: time.Now(),
		now:       time.Now,
	}

	return router.NewRESTController(
		"MonitoringController",
		"/api",
		func(routerService *router.RouterService, controller *router.RESTController) {
			routerService.AddGetHandler(controller, nil, "health", func(c *router.RequestContext) *router.ServiceResult {
				return ctrl.healthCheck(routerService, c)
			})
			// Liveness polling must never be throttled.
			routerService.ExemptFromRateLimit(controller, http.MethodGet, "health")
		},
	)
}

func (ctrl *MonitoringController) healthCheck(
	routerService *router.RouterService,
	c *router.RequestContext,
) *router.ServiceResult {
	logger := routerService.GetLogger(c)
	logger.Debug("Health check endpoint called")

	status := ctrl.performHealthChecks(c.Request.Context(), logger)
	return router.OKResult(status, healthMessage).WithField("timestamp", status.Timestamp)
}

func (ctrl *MonitoringController) performHealthChecks(ctx context.Context, logger *log.Logger) HealthStatus {
	status := HealthStatus{
		Timestamp: ctrl.now().UTC().Format(time.RFC3339Nano),
		Uptime:    int(ctrl.now().Sub(ctrl.startTime).Seconds()),
		Database:  statusDisconnected,
		Cache:     statusNotConfigured,
	}

	checkDatabaseConnectivity(ctx, ctrl, &status, logger)
	checkCacheConnectivity(ctx, ctrl, &status, logger)

	return status
}

func checkCacheConnectivity(ctx context.Context, ctrl *MonitoringController, status *HealthStatus, logger *log.Logger) {
	if ctrl.cache == nil {
		return
	}

	if ping(ctx, ctrl.cache.Ping) {
		status.Cache = statusConnected
		return
	}

	status.Cache = statusDisconnected
	logger.Error("Cache health check failed")
}

func checkDatabaseConnectivity(ctx context.Context, ctrl *MonitoringController, status *HealthStatus, logger *log.Logger) {
	if ctrl.database == nil {
		logger.Error("Database health check skipped: no database configured")
		return
	}

	status.Driver = ctrl.database.DatabaseName()
	if ping(ctx, ctrl.database.PingDatabase) {
		status.Database = statusConnected
		return
	}

	logger.Error("Database health check failed", "driver", status.Driver)
}

func ping(ctx context.Context, fn func(context.Context) error) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return fn(ctx) == nil
}
