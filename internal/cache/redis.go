package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jobboard/backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps every backend failure so callers can tell an
// unreachable cache from a cache miss.
var ErrUnavailable = errors.New("cache unavailable")

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
