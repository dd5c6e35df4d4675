package port

import (
	"context"
	"time"
)

type CacheRepository interface {
	// Get returns the stored value, or ok=false when the key is absent or expired
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key for ttl
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeletePrefix removes every key starting with prefix
	DeletePrefix(ctx context.Context, prefix string) error
}
