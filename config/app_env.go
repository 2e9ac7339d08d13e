package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/workdora/waitlist-api/internal/log"
	"github.com/workdora/waitlist-api/pkg/utils"
)

const (
	AppEnvKey = "APP_ENV"
	// EnvFileKey points at an alternate dotenv file; .env is used when unset.
	EnvFileKey = "ENV_FILE"
)

// InitializeEnvFile loads dotenv values without overriding variables already set in the
// process environment.
func InitializeEnvFile(logger *log.Logger) {
	if os.Getenv("SKIP_DOTENV") == "true" {
		logger.Info("Skipping .env file load (SKIP_DOTENV=true)")
		return
	}

	path := utils.GetEnvTrimmedOrDefault(EnvFileKey, ".env")
	if err := godotenv.Load(path); err != nil {
		logger.Warn("No env file loaded", "path", path, "error", err.Error())
		return
	}

	logger.Info("Environment variables loaded", "path", path)
}

func GetAppEnv() string {
	return strings.ToLower(strings.TrimSpace(os.Getenv(AppEnvKey)))
}

// ValidateAutoMigrateAllowed keeps --auto-migrate away from shared environments.
func ValidateAutoMigrateAllowed(appEnv string) error {
	env := strings.ToLower(strings.TrimSpace(appEnv))

	switch env {
	case "", "dev", "development", "local", "test", "testing":
		return nil
	default:
		return fmt.Errorf("--auto-migrate is not allowed when %s=%q (allowed: \"\", dev, development, local, test, testing)", AppEnvKey, env)
	}
}
