// Package cache holds the Redis-backed helpers of the security monitor:
// the access guard's block-state cache, the sweep lock and the duplicate
// event suppressor.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/riskianand4/internet-stock-tracker-84/internal/database"
)

const keyPrefix = "secmon:"

// BlockCache caches the per-address block decision of the access guard
type BlockCache struct {
	rdb *database.Redis
	ttl time.Duration
}

// NewBlockCache creates a BlockCache whose entries live for ttl
func NewBlockCache(rdb *database.Redis, ttl time.Duration) *BlockCache {
	return &BlockCache{rdb: rdb, ttl: ttl}
}

func blockKey(ip string) string {
	return keyPrefix + "blocked:" + ip
}

// Get returns the cached decision for ip. found is false on a cache miss.
func (c *BlockCache) Get(ctx context.Context, ip string) (blocked, found bool, err error) {
	val, err := c.rdb.GetString(ctx, blockKey(ip))
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to read block cache: %w", err)
	}
	return val == "1", true, nil
}

// Set stores the decision for ip
func (c *BlockCache) Set(ctx context.Context, ip string, blocked bool) error {
	val := "0"
	if blocked {
		val = "1"
	}
	if err := c.rdb.SetWithTTL(ctx, blockKey(ip), val, c.ttl); err != nil {
		return fmt.Errorf("failed to write block cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached decision for each address
func (c *BlockCache) Invalidate(ctx context.Context, ips ...string) error {
	if len(ips) == 0 {
		return nil
	}
	keys := make([]string, len(ips))
	for i, ip := range ips {
		keys[i] = blockKey(ip)
	}
	if err := c.rdb.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to invalidate block cache: %w", err)
	}
	return nil
}

// Lock is a single-holder lock shared by every process using the same Redis
type Lock struct {
	rdb *database.Redis
	key string
	ttl time.Duration
}

// NewLock creates a Lock stored under name. The lock expires after ttl even
// when its holder never releases it.
func NewLock(rdb *database.Redis, name string, ttl time.Duration) *Lock {
	return &Lock{rdb: rdb, key: keyPrefix + "lock:" + name, ttl: ttl}
}

// TryAcquire takes the lock without waiting. The returned token must be
// passed to Release.
func (l *Lock) TryAcquire(ctx context.Context) (string, bool, error) {
	token := uuid.New().String()
	ok, err := l.rdb.SetIfAbsent(ctx, l.key, token, l.ttl)
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock if token still holds it
func (l *Lock) Release(ctx context.Context, token string) error {
	if _, err := l.rdb.ReleaseLock(ctx, l.key, token); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	return nil
}

// Suppressor lets the first occurrence of a key through per period
type Suppressor struct {
	rdb    *database.Redis
	period time.Duration
}

// NewSuppressor creates a Suppressor with the given period
func NewSuppressor(rdb *database.Redis, period time.Duration) *Suppressor {
	return &Suppressor{rdb: rdb, period: period}
}

// First reports whether key has not been seen during the current period and
// marks it as seen
func (s *Suppressor) First(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetIfAbsent(ctx, keyPrefix+"dedup:"+key, 1, s.period)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}
	return ok, nil
}
