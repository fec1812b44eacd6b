package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaderLock elects one sweeper across instances. Holding it is an
// optimization; settlement stays correct without it.
type LeaderLock struct {
	svc   *CacheService
	key   string
	owner string
	ttl   time.Duration
}

func NewLeaderLock(svc *CacheService, name, owner string, ttl time.Duration) *LeaderLock {
	return &LeaderLock{svc: svc, key: LeaderKey(name), owner: owner, ttl: ttl}
}

// Acquire takes the lock or extends it when this owner already holds it
func (l *LeaderLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.svc.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("leader lock: %w", err)
	}
	if ok {
		return true, nil
	}

	extended, err := extendScript.Run(ctx, l.svc.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("leader lock extend: %w", err)
	}
	return extended == 1, nil
}

// Release drops the lock if this owner holds it
func (l *LeaderLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.svc.client, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("leader lock release: %w", err)
	}
	return nil
}
