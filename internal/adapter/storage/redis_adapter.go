package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/record-store/internal/port"
)

const scanBatchSize = 500

// deleteKeysScript unlinks a batch of keys in one round trip.
var deleteKeysScript = redis.NewScript(`
local removed = 0
for i, key in ipairs(KEYS) do
	removed = removed + redis.call('UNLINK', key)
end
return removed
`)

type RedisAdapter struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisAdapter returns a cache repository on client. keyPrefix namespaces
// every key so several deployments can share one Redis.
func NewRedisAdapter(client *redis.Client, keyPrefix string) *RedisAdapter {
	return &RedisAdapter{client: client, keyPrefix: keyPrefix}
}

func (r *RedisAdapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (r *RedisAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.keyPrefix+key, value, ttl).Err()
}

// DeletePrefix removes matching keys in SCAN-sized batches.
func (r *RedisAdapter) DeletePrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, r.keyPrefix+prefix+"*", scanBatchSize).Iterator()

	batch := make([]string, 0, scanBatchSize)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatchSize {
			if err := r.unlink(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s*: %w", prefix, err)
	}
	return r.unlink(ctx, batch)
}

func (r *RedisAdapter) unlink(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := deleteKeysScript.Run(ctx, r.client, keys).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("unlink keys: %w", err)
	}
	return nil
}

var _ port.CacheRepository = (*RedisAdapter)(nil)
