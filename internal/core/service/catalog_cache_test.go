package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/record-store/internal/adapter/storage"
	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/metrics"
)

func newLRUCache(t *testing.T, opts ...CatalogCacheOption) (*CatalogCache, *storage.LRUAdapter) {
	t.Helper()
	lru, err := storage.NewLRUAdapter(100)
	require.NoError(t, err)
	return NewCatalogCache(lru, zap.NewNop(), metrics.New(prometheus.NewRegistry()), opts...), lru
}

func TestSearchKey(t *testing.T) {
	base := domain.CatalogFilter{Page: 2, Size: 20, Query: "abbey road", Format: domain.FormatVinyl}

	key := SearchKey(base)
	assert.True(t, strings.HasPrefix(key, "search:2:20:"))
	assert.Equal(t, key, SearchKey(base))

	other := base
	other.Page = 3
	assert.NotEqual(t, key, SearchKey(other))
	assert.Equal(t, strings.TrimPrefix(key, "search:2:20:"), strings.TrimPrefix(SearchKey(other), "search:3:20:"))

	other = base
	other.Category = domain.CategoryRock
	assert.NotEqual(t, key, SearchKey(other))

	// Field boundaries are escaped, so values cannot bleed into each other.
	a := domain.CatalogFilter{Artist: "a&album=b"}
	b := domain.CatalogFilter{Artist: "a", Album: "b"}
	assert.NotEqual(t, SearchKey(a), SearchKey(b))
}

func TestTrackListKey(t *testing.T) {
	assert.Equal(t, "tracklist:mbid-X", TrackListKey("mbid-X"))
}

func TestCatalogCache_SearchResultsRoundTrip(t *testing.T) {
	cache, _ := newLRUCache(t)
	ctx := context.Background()
	filter := domain.CatalogFilter{Page: 1, Size: 10, Artist: "beatles"}

	_, ok := cache.GetSearchResults(ctx, filter)
	require.False(t, ok)

	page := domain.NewPage([]domain.CatalogEntry{{ID: "e1", Artist: "The Beatles", Album: "Help!"}}, 1, 10, 1)
	cache.SetSearchResults(ctx, filter, page, cache.SearchGeneration())

	got, ok := cache.GetSearchResults(ctx, filter)
	require.True(t, ok)
	require.Len(t, got.Data, 1)
	assert.Equal(t, "Help!", got.Data[0].Album)
	assert.Equal(t, page.Pagination, got.Pagination)
}

func TestCatalogCache_InvalidateKeepsTrackLists(t *testing.T) {
	cache, lru := newLRUCache(t)
	ctx := context.Background()

	for page := 1; page <= 3; page++ {
		cache.SetSearchResults(ctx, domain.CatalogFilter{Page: page, Size: 10}, domain.NewPage[domain.CatalogEntry](nil, page, 10, 0), cache.SearchGeneration())
	}
	cache.SetTrackList(ctx, "mbid-X", abbeyRoadTracks)
	require.Equal(t, 4, lru.Len())

	cache.InvalidateSearchResults(ctx)

	assert.Equal(t, 1, lru.Len())
	_, ok := cache.GetSearchResults(ctx, domain.CatalogFilter{Page: 1, Size: 10})
	assert.False(t, ok)
	tracks, ok := cache.GetTrackList(ctx, "mbid-X")
	require.True(t, ok)
	assert.Equal(t, abbeyRoadTracks, tracks)
}

func TestCatalogCache_SearchTTL(t *testing.T) {
	cache, _ := newLRUCache(t, WithSearchTTL(20*time.Millisecond))
	ctx := context.Background()
	filter := domain.CatalogFilter{Page: 1, Size: 10}

	cache.SetSearchResults(ctx, filter, domain.NewPage[domain.CatalogEntry](nil, 1, 10, 0), cache.SearchGeneration())
	_, ok := cache.GetSearchResults(ctx, filter)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = cache.GetSearchResults(ctx, filter)
	assert.False(t, ok)
}

func TestCatalogCache_BackendErrorsAreAbsorbed(t *testing.T) {
	cache := NewCatalogCache(failingCache{}, zap.NewNop(), nil)
	ctx := context.Background()

	require.NotPanics(t, func() {
		cache.SetSearchResults(ctx, domain.CatalogFilter{}, domain.NewPage[domain.CatalogEntry](nil, 1, 10, 0), cache.SearchGeneration())
		cache.SetTrackList(ctx, "mbid-X", abbeyRoadTracks)
		cache.InvalidateSearchResults(ctx)
	})

	_, ok := cache.GetSearchResults(ctx, domain.CatalogFilter{})
	assert.False(t, ok)
	_, ok = cache.GetTrackList(ctx, "mbid-X")
	assert.False(t, ok)
}

func TestCatalogCache_CorruptValueIsMiss(t *testing.T) {
	cache, lru := newLRUCache(t)
	ctx := context.Background()

	require.NoError(t, lru.Set(ctx, TrackListKey("mbid-X"), []byte("{not json"), time.Minute))

	_, ok := cache.GetTrackList(ctx, "mbid-X")
	assert.False(t, ok)
}

func TestCatalogCache_FillAfterInvalidationIsDropped(t *testing.T) {
	cache, lru := newLRUCache(t)
	ctx := context.Background()
	filter := domain.CatalogFilter{Page: 1, Size: 10}

	generation := cache.SearchGeneration()
	cache.InvalidateSearchResults(ctx)

	written := cache.SetSearchResults(ctx, filter, domain.NewPage[domain.CatalogEntry](nil, 1, 10, 0), generation)
	assert.False(t, written)
	assert.Equal(t, 0, lru.Len())

	written = cache.SetSearchResults(ctx, filter, domain.NewPage[domain.CatalogEntry](nil, 1, 10, 0), cache.SearchGeneration())
	assert.True(t, written)
	_, ok := cache.GetSearchResults(ctx, filter)
	assert.True(t, ok)
}
