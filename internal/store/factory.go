package store

import (
	"context"
	"fmt"
	"shiftclock/internal/types"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewStore creates a Store based on configuration: Redis when a DSN is
// configured, otherwise the in-memory store.
func NewStore(configManager types.ConfigManager) (Store, error) {
	redisDSN := configManager.GetRedisDSN()

	if redisDSN == "" {
		logrus.Info("No REDIS_DSN configured, using in-memory store")
		return NewMemoryStore(), nil
	}

	opt, err := redis.ParseURL(redisDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis DSN: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logrus.Info("Using Redis store")
	return NewRedisStore(client), nil
}
