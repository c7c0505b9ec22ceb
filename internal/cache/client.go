// Package cache implements MetricsCache: a process-local view over a shared
// Redis instance's lists, hashes, sorted sets, and pub/sub channels.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config is the connection configuration for the shared cache.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NewClient dials Redis and verifies connectivity, grounded on the
// teacher's internal/redis.NewClient.
func NewClient(cfg *Config, log *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("connected to cache", zap.String("host", cfg.Host), zap.String("port", cfg.Port), zap.Int("db", cfg.DB))
	return client, nil
}
