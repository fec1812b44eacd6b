package config

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ConnectDB opens the pool, retrying with exponential backoff while the database comes up
func ConnectDB(ctx context.Context, cfg DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// tuning pool settings
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	maxRetries := 5
	delay := 2 * time.Second

	for i := 1; i <= maxRetries; i++ {
		logger.Info("connecting to database",
			zap.Int("attempt", i),
			zap.Int("max_attempts", maxRetries),
			zap.String("database", cfg.DBName))

		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pool, connErr := pgxpool.NewWithConfig(attemptCtx, poolCfg)
		if connErr == nil {
			if pingErr := pool.Ping(attemptCtx); pingErr == nil {
				cancel()
				logger.Info("connected to database", zap.String("database", cfg.DBName))
				return pool, nil
			} else {
				pool.Close()
				connErr = fmt.Errorf("ping failed: %w", pingErr)
			}
		}
		cancel()
		err = connErr

		logger.Warn("database connection failed", zap.Error(err))

		if i < maxRetries {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect to DB after %d attempts: %w", maxRetries, err)
}
