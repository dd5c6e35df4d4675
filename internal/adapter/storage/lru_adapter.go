package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rl1809/record-store/internal/port"
)

type lruItem struct {
	value     []byte
	expiresAt time.Time
}

// LRUAdapter is an in-process cache repository bounded by capacity. Each
// entry carries its own expiry.
type LRUAdapter struct {
	mu    sync.Mutex
	cache *lru.Cache[string, lruItem]
	now   func() time.Time
}

func NewLRUAdapter(capacity int) (*LRUAdapter, error) {
	c, err := lru.New[string, lruItem](capacity)
	if err != nil {
		return nil, err
	}
	return &LRUAdapter{cache: c, now: time.Now}, nil
}

func (l *LRUAdapter) Get(_ context.Context, key string) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !l.now().Before(item.expiresAt) {
		l.cache.Remove(key)
		return nil, false, nil
	}
	return append([]byte(nil), item.value...), true, nil
}

func (l *LRUAdapter) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache.Add(key, lruItem{
		value:     append([]byte(nil), value...),
		expiresAt: l.now().Add(ttl),
	})
	return nil
}

func (l *LRUAdapter) DeletePrefix(_ context.Context, prefix string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, key := range l.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			l.cache.Remove(key)
		}
	}
	return nil
}

func (l *LRUAdapter) Len() int {
	return l.cache.Len()
}

var _ port.CacheRepository = (*LRUAdapter)(nil)
