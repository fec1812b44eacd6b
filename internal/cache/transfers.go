package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"deposit-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TransferCache keeps the latest provider answer per address for a short TTL
type TransferCache struct {
	svc *CacheService
	ttl time.Duration
}

func NewTransferCache(svc *CacheService, ttl time.Duration) *TransferCache {
	return &TransferCache{svc: svc, ttl: ttl}
}

// GetTransfers reports a miss on any redis failure
func (c *TransferCache) GetTransfers(ctx context.Context, address string) ([]domain.Transfer, bool) {
	data, err := c.svc.client.Get(ctx, TransfersKey(address)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.svc.logger.Warn("transfer cache get failed", zap.String("address", address), zap.Error(err))
		}
		return nil, false
	}

	var transfers []domain.Transfer
	if err := json.Unmarshal(data, &transfers); err != nil {
		c.svc.logger.Warn("transfer cache entry corrupt", zap.String("address", address), zap.Error(err))
		return nil, false
	}
	return transfers, true
}

func (c *TransferCache) SetTransfers(ctx context.Context, address string, transfers []domain.Transfer) {
	data, err := json.Marshal(transfers)
	if err != nil {
		return
	}
	if err := c.svc.client.Set(ctx, TransfersKey(address), data, c.ttl).Err(); err != nil {
		c.svc.logger.Warn("transfer cache set failed", zap.String("address", address), zap.Error(err))
	}
}
