package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/workdora/waitlist-api/config"
	"github.com/workdora/waitlist-api/domain/waitlist"
	"github.com/workdora/waitlist-api/internal/log"
	"github.com/workdora/waitlist-api/pkg/migrations"
	"github.com/workdora/waitlist-api/pkg/utils"
)

func main() {
	logger := log.NewLoggerWithJSONOutput()

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "migrate":
		config.InitializeEnvFile(logger)
		if err := runMigrate(logger, args[1:]); err != nil {
			logger.Error("Database migration failed", "error", err.Error())
			os.Exit(1)
		}

	case "stats":
		if err := runStats(logger); err != nil {
			logger.Error("Failed to read waitlist stats", "error", err.Error())
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func runMigrate(logger *log.Logger, args []string) error {
	db, err := config.NewDatabase(logger, nil)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer config.CloseDatabase(db, logger)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get SQL DB instance: %w", err)
	}

	cfg := migrations.Config{
		Dir:    utils.GetEnvTrimmedOrDefault("MIGRATIONS_DIR", migrations.DefaultDir),
		Logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}

	switch direction {
	case "up":
		return migrations.Up(ctx, sqlDB, cfg)

	case "down":
		steps := 1
		if len(args) > 1 {
			steps, err = strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid step count %q: %w", args[1], err)
			}
		}
		return migrations.Down(ctx, sqlDB, cfg, steps)

	case "version":
		status, err := migrations.CurrentStatus(ctx, sqlDB, cfg)
		if err != nil {
			return err
		}
		if !status.Applied {
			fmt.Println("no migrations applied")
			return nil
		}
		fmt.Printf("version %d (dirty: %t)\n", status.Version, status.Dirty)
		return nil

	default:
		return fmt.Errorf("unknown migrate direction %q (expected up, down or version)", direction)
	}
}

func runStats(logger *log.Logger) error {
	appConfig, err := config.LoadStorageConfiguration(logger)
	if err != nil {
		return err
	}
	defer appConfig.Cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	service, err := waitlist.NewWaitlistServiceFactory(appConfig).CreateService(ctx, nil)
	if err != nil {
		return err
	}

	stats, err := service.GetStats(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(stats)
}

func printUsage() {
	fmt.Println("Usage: cli <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  migrate [up]        Apply pending SQL migrations")
	fmt.Println("  migrate down [n]    Roll back the last n migrations (default 1)")
	fmt.Println("  migrate version     Print the current schema version")
	fmt.Println("  stats               Print waitlist statistics as JSON")
}
