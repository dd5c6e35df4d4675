package service

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/metrics"
	"github.com/rl1809/record-store/internal/port"
)

const (
	searchKeyPrefix    = "search:"
	trackListKeyPrefix = "tracklist:"

	DefaultSearchTTL    = 300 * time.Second
	DefaultTrackListTTL = 24 * time.Hour
)

// CatalogCache stores search result pages and resolved track lists.
// Backend failures are logged and counted, never returned.
//
// Search fills are tied to the generation observed before the store read.
// Invalidation bumps the generation, so a fill that started before it is
// dropped instead of repopulating pre-write data.
type CatalogCache struct {
	fillMu     sync.RWMutex
	generation uint64

	repo         port.CacheRepository
	logger       *zap.Logger
	metrics      *metrics.Metrics
	searchTTL    time.Duration
	trackListTTL time.Duration
}

type CatalogCacheOption func(*CatalogCache)

func WithSearchTTL(ttl time.Duration) CatalogCacheOption {
	return func(c *CatalogCache) {
		if ttl > 0 {
			c.searchTTL = ttl
		}
	}
}

func WithTrackListTTL(ttl time.Duration) CatalogCacheOption {
	return func(c *CatalogCache) {
		if ttl > 0 {
			c.trackListTTL = ttl
		}
	}
}

func NewCatalogCache(repo port.CacheRepository, logger *zap.Logger, m *metrics.Metrics, opts ...CatalogCacheOption) *CatalogCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &CatalogCache{
		repo:         repo,
		logger:       logger,
		metrics:      m,
		searchTTL:    DefaultSearchTTL,
		trackListTTL: DefaultTrackListTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CatalogCache) GetSearchResults(ctx context.Context, filter domain.CatalogFilter) (*domain.Page[domain.CatalogEntry], bool) {
	key := SearchKey(filter)

	var page domain.Page[domain.CatalogEntry]
	if !c.get(ctx, "search", key, &page) {
		return nil, false
	}
	return &page, true
}

// SearchGeneration returns the current invalidation generation. Capture it
// before reading the store and pass it to SetSearchResults.
func (c *CatalogCache) SearchGeneration() uint64 {
	c.fillMu.RLock()
	defer c.fillMu.RUnlock()
	return c.generation
}

// SetSearchResults stores page unless an invalidation happened after
// generation was captured. It reports whether the page was written.
func (c *CatalogCache) SetSearchResults(ctx context.Context, filter domain.CatalogFilter, page *domain.Page[domain.CatalogEntry], generation uint64) bool {
	c.fillMu.RLock()
	defer c.fillMu.RUnlock()

	key := SearchKey(filter)
	if generation != c.generation {
		c.logger.Debug("stale search fill dropped", zap.String("key", key),
			zap.Uint64("generation", generation), zap.Uint64("current", c.generation))
		return false
	}
	return c.set(ctx, key, page, c.searchTTL)
}

// InvalidateSearchResults drops every cached search page regardless of filter.
func (c *CatalogCache) InvalidateSearchResults(ctx context.Context) {
	c.fillMu.Lock()
	defer c.fillMu.Unlock()

	c.generation++
	if err := c.repo.DeletePrefix(ctx, searchKeyPrefix); err != nil {
		c.metrics.CacheError("invalidate")
		c.logger.Warn("invalidate search results", zap.String("prefix", searchKeyPrefix), zap.Error(err))
		return
	}
	c.metrics.CacheInvalidated()
}

func (c *CatalogCache) GetTrackList(ctx context.Context, externalID string) ([]domain.Track, bool) {
	var tracks []domain.Track
	if !c.get(ctx, "tracklist", TrackListKey(externalID), &tracks) {
		return nil, false
	}
	return tracks, true
}

func (c *CatalogCache) SetTrackList(ctx context.Context, externalID string, tracks []domain.Track) {
	_ = c.set(ctx, TrackListKey(externalID), tracks, c.trackListTTL)
}

func (c *CatalogCache) get(ctx context.Context, kind, key string, dst any) bool {
	raw, ok, err := c.repo.Get(ctx, key)
	if err != nil {
		c.metrics.CacheError("get")
		c.logger.Warn("cache get", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		c.metrics.CacheMiss(kind)
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.metrics.CacheError("decode")
		c.logger.Warn("cache decode", zap.String("key", key), zap.Error(err))
		return false
	}
	c.metrics.CacheHit(kind)
	return true
}

func (c *CatalogCache) set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		c.metrics.CacheError("encode")
		c.logger.Warn("cache encode", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := c.repo.Set(ctx, key, raw, ttl); err != nil {
		c.metrics.CacheError("set")
		c.logger.Warn("cache set", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// SearchKey is search:<page>:<size>:<hash>, where hash covers every filter
// except pagination.
func SearchKey(filter domain.CatalogFilter) string {
	var b strings.Builder
	b.WriteString(searchKeyPrefix)
	b.WriteString(strconv.Itoa(filter.Page))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(filter.Size))
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(xxhash.Sum64String(canonicalFilter(filter)), 16))
	return b.String()
}

func TrackListKey(externalID string) string {
	return trackListKeyPrefix + externalID
}

func canonicalFilter(f domain.CatalogFilter) string {
	return "q=" + url.QueryEscape(f.Query) +
		"&artist=" + url.QueryEscape(f.Artist) +
		"&album=" + url.QueryEscape(f.Album) +
		"&format=" + url.QueryEscape(string(f.Format)) +
		"&category=" + url.QueryEscape(string(f.Category))
}
