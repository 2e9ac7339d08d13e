package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/workdora/waitlist-api/internal/log"
	"github.com/workdora/waitlist-api/pkg/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultPostgresPort = 5432

// PostgresConfig describes the SQL store used when STORAGE_DRIVER=postgres. URL wins over
// the discrete POSTGRES_* fields when both are set.
type PostgresConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	SlowQuery       time.Duration
}

func NewPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		URL:      sanitizeEnv(utils.FirstEnvTrimmed("", "APP_DATABASE_URL", "DATABASE_URL")),
		Host:     sanitizeEnv(utils.GetEnvTrimmed("POSTGRES_HOST")),
		Port:     sanitizeEnv(utils.GetEnvTrimmedOrDefault("POSTGRES_PORT", strconv.Itoa(defaultPostgresPort))),
		User:     sanitizeEnv(utils.GetEnvTrimmed("POSTGRES_USER")),
		Password: sanitizeEnv(utils.GetEnvTrimmed("POSTGRES_PASSWORD")),
		Name:     sanitizeEnv(utils.GetEnvTrimmed("POSTGRES_DB_NAME")),
		// require is the production-safe default.
		SSLMode: sanitizeEnv(utils.GetEnvTrimmedOrDefault("POSTGRES_SSLMODE", "require")),

		MaxIdleConns:    utils.GetEnvPositiveInt("DB_MAX_IDLE_CONNS", 10),
		MaxOpenConns:    utils.GetEnvPositiveInt("DB_MAX_OPEN_CONNS", 50),
		ConnMaxLifetime: utils.GetEnvPositiveDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		SlowQuery:       utils.GetEnvPositiveDuration("DB_SLOW_QUERY_THRESHOLD", 500*time.Millisecond),
	}
}

// DSN returns the connection string, or an error naming every missing variable.
func (pc *PostgresConfig) DSN() (string, error) {
	if pc.URL != "" {
		return pc.URL, nil
	}

	var missing []string
	if pc.Host == "" {
		missing = append(missing, "POSTGRES_HOST")
	}
	if pc.User == "" {
		missing = append(missing, "POSTGRES_USER")
	}
	if pc.Name == "" {
		missing = append(missing, "POSTGRES_DB_NAME")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing required database env vars: %s", strings.Join(missing, ", "))
	}

	port, err := strconv.Atoi(pc.Port)
	if err != nil || port <= 0 {
		return "", fmt.Errorf("invalid POSTGRES_PORT %q", pc.Port)
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, port, pc.User, pc.Password, pc.Name, pc.SSLMode,
	), nil
}

// Target is a credential-free description of where DSN points, for logs.
func (pc *PostgresConfig) Target() string {
	if pc.URL == "" {
		return fmt.Sprintf("%s:%s/%s", pc.Host, pc.Port, pc.Name)
	}

	u, err := url.Parse(pc.URL)
	if err != nil || u.Host == "" {
		return "APP_DATABASE_URL"
	}
	return u.Host + u.Path
}

func NewDatabase(logger *log.Logger, cfg *PostgresConfig) (*gorm.DB, error) {
	if cfg == nil {
		cfg = NewPostgresConfig()
	}

	dsn, err := cfg.DSN()
	if err != nil {
		logger.Error("Postgres is not configured", "error", err)
		return nil, err
	}

	logger.Info("Connecting to database", "target", cfg.Target(), "sslmode", cfg.SSLMode)

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(slogWriter{logger}, gormlogger.Config{
			SlowThreshold:             cfg.SlowQuery,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		logger.Error("Failed to get database instance", "error", err)
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		logger.Error("Database ping failed", "error", err)
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info("Database connection established successfully")
	return gdb, nil
}

// slogWriter routes gorm's slow-query and error lines through the application logger.
type slogWriter struct {
	logger *log.Logger
}

func (w slogWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn("gorm", "detail", fmt.Sprintf(format, args...))
}

func sanitizeEnv(v string) string {
	s := strings.TrimSpace(v)

	if len(s) >= 2 && ((s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'')) {
		s = s[1 : len(s)-1]
	}

	return s
}

var errNilDatabase = errors.New("cannot migrate: db is nil")

// AutoMigrate creates or alters tables for models. It backs --auto-migrate in development;
// deployed environments run the SQL files in migrations/ instead.
func AutoMigrate(logger *log.Logger, db *gorm.DB, models ...interface{}) error {
	if db == nil {
		logger.Error("Cannot migrate without a database")
		return errNilDatabase
	}

	if err := db.AutoMigrate(models...); err != nil {
		logger.Error("Database migration failed", "error", err)
		return fmt.Errorf("auto-migrate failed: %w", err)
	}

	logger.Info("Database migration completed successfully", "models", len(models))
	return nil
}

func CloseDatabase(db *gorm.DB, logger *log.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("Failed to get SQL DB instance", "error", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
		return
	}
	logger.Info("Database closed successfully")
}
