package cache

import (
	"context"
	"fmt"
	"time"

	"commissionledger/internal/config"
	"commissionledger/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// NewRedis connects and pings. The caller owns the returned client.
func NewRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	logger.L().Info("redis connected", zap.String("addr", client.Options().Addr))
	return client, nil
}
