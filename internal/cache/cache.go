package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CacheService wraps the redis client used for transfer caching and sweep leadership
type CacheService struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheService connects and pings redis
func NewCacheService(addr, password string, db int, logger *zap.Logger) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		PoolSize:        20,
		MinIdleConns:    2,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnMaxLifetime: 30 * time.Minute,

		// Retry configuration
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis connected", zap.String("addr", addr))

	return &CacheService{client: client, logger: logger}, nil
}

func (c *CacheService) Close() error {
	return c.client.Close()
}

// TransfersKey formats the cache key for an address' recent transfers
func TransfersKey(address string) string {
	return fmt.Sprintf("deposit:v1:transfers:%s", address)
}

// LeaderKey formats the key guarding the reconciliation sweep
func LeaderKey(name string) string {
	return fmt.Sprintf("deposit:v1:leader:%s", name)
}
