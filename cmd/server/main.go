package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/workdora/waitlist-api/config"
	"github.com/workdora/waitlist-api/domain"
	"github.com/workdora/waitlist-api/internal/log"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := log.NewLoggerWithJSONOutput()

	if err := run(logger, hasFlag(os.Args[1:], "--auto-migrate", "-m")); err != nil {
		logger.Error("Waitlist API stopped with error", "error", err.Error())
		os.Exit(1)
	}
}

func run(logger *log.Logger, autoMigrate bool) error {
	logger.Info("Waitlist API starting", "auto_migrate", autoMigrate)

	appConfig, err := config.LoadApplicationConfiguration(logger, autoMigrate)
	if err != nil {
		return err
	}
	defer appConfig.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := domain.SetupCoreDomain(ctx, appConfig); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- appConfig.RouterService.RunHTTPServer()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, draining requests", "timeout", shutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := appConfig.RouterService.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("HTTP server shut down gracefully")
	return nil
}

func hasFlag(args []string, names ...string) bool {
	for _, arg := range args {
		for _, name := range names {
			if strings.EqualFold(arg, name) {
				return true
			}
		}
	}
	return false
}
