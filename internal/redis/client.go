package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	stockflow_errors "stockflow/pkg/errors"
)

type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w: %w", stockflow_errors.ErrServiceUnavailable, err)
	}
	return client, nil
}
