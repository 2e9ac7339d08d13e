package config

import (
	"context"
	"fmt"
	"time"

	"github.com/workdora/waitlist-api/internal/log"
	"github.com/workdora/waitlist-api/pkg/constants"
	"github.com/workdora/waitlist-api/pkg/utils"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const mongoConnectTimeout = 10 * time.Second

type MongoConfig struct {
	URI      string
	Database string
}

func NewMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:      sanitizeEnv(utils.GetEnvTrimmed("MONGO_URI")),
		Database: utils.GetEnvTrimmedOrDefault("MONGO_DATABASE", constants.DefaultMongoDatabase),
	}
}

func (mc *MongoConfig) IsConfigured() bool {
	return mc.URI != ""
}

// NewMongoDatabase connects, pings the primary and returns the client with the configured
// database. The caller owns the client and must close it with CloseMongo.
func NewMongoDatabase(ctx context.Context, logger *log.Logger, cfg *MongoConfig) (*mongo.Client, *mongo.Database, error) {
	if cfg == nil {
		cfg = NewMongoConfig()
	}
	if !cfg.IsConfigured() {
		logger.Error("MONGO_URI is required when STORAGE_DRIVER=mongo")
		return nil, nil, fmt.Errorf("mongo is not configured: MONGO_URI is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		logger.Error("Failed to connect to MongoDB", "error", err)
		return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		logger.Error("MongoDB ping failed", "error", err)
		return nil, nil, fmt.Errorf("mongo ping failed: %w", err)
	}

	logger.Info("MongoDB connection established successfully", "database", cfg.Database)
	return client, client.Database(cfg.Database), nil
}

func CloseMongo(client *mongo.Client, logger *log.Logger) {
	if client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		logger.Error("MongoDB disconnect failed", "error", err)
		return
	}
	logger.Info("MongoDB connection closed")
}
