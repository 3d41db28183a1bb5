package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/careflow-api/config"
	"github.com/jwalitptl/careflow-api/internal/repository"
	"github.com/jwalitptl/careflow-api/internal/repository/memory"
	"github.com/jwalitptl/careflow-api/internal/repository/postgres"
	"github.com/jwalitptl/careflow-api/pkg/logger"
	"github.com/jwalitptl/careflow-api/pkg/messaging"
	"github.com/jwalitptl/careflow-api/pkg/messaging/redis"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
)

// NewLogger builds the process logger from configuration.
func NewLogger(cfg *config.Config) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON || cfg.IsProduction(),
	})
}

// OpenStore connects the configured store. The memory store lives only as
// long as the process.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return postgres.NewStore(db), nil
	default:
		log.Warn("Using in-memory store; data is lost on restart")
		return memory.NewStore(), nil
	}
}

// OpenBroker connects Redis when enabled and falls back to the in-process
// broker otherwise.
func OpenBroker(ctx context.Context, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (messaging.Broker, error) {
	if !cfg.Redis.Enabled {
		return messaging.NewMemoryBroker(cfg.Realtime.BufferSize), nil
	}
	broker, err := redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), log.Zerolog(), m)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return broker, nil
}
