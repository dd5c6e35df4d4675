package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/record-store/internal/adapter/storage"
	"github.com/rl1809/record-store/internal/config"
	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/metrics"
	"github.com/rl1809/record-store/internal/port"
)

var errBackend = errors.New("backend down")

// fakeSource is a MetadataSource that serves canned track lists and counts calls.
type fakeSource struct {
	mu     sync.Mutex
	tracks map[string][]domain.Track
	errs   map[string]error
	err    error
	calls  map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		tracks: make(map[string][]domain.Track),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeSource) FetchTrackList(ctx context.Context, externalID string) ([]domain.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[externalID]++
	if err, ok := f.errs[externalID]; ok {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.tracks[externalID], nil
}

func (f *fakeSource) Calls(externalID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[externalID]
}

// failingCache is a CacheRepository whose every call fails.
type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errBackend }
func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errBackend
}
func (failingCache) DeletePrefix(context.Context, string) error { return errBackend }

type testEnv struct {
	store    *storage.MemoryStore
	catalogs *storage.MemoryCatalogRepository
	orders   *storage.MemoryOrderRepository
	lru      *storage.LRUAdapter
	cache    *CatalogCache
	source   *fakeSource
	resolver *TrackListResolver
	catalog  *CatalogService
	ordering *OrderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	lru, err := storage.NewLRUAdapter(1000)
	require.NoError(t, err)

	env := &testEnv{
		store:  storage.NewMemoryStore(),
		lru:    lru,
		source: newFakeSource(),
	}
	env.catalogs = storage.NewMemoryCatalogRepository(env.store)
	env.orders = storage.NewMemoryOrderRepository(env.store)

	logger := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())

	env.cache = NewCatalogCache(lru, logger, m)
	env.resolver = NewTrackListResolver(env.source, env.cache,
		NewBreaker(config.Breaker{Threshold: 3, OpenTimeout: time.Minute, MaxHalfOpen: 1}),
		time.Second, logger, m)
	env.catalog = NewCatalogService(env.catalogs, env.cache, env.resolver, logger)
	env.ordering = NewOrderService(env.store, env.catalogs, env.orders, env.cache, logger, m)
	return env
}

func (e *testEnv) createEntry(t *testing.T, artist, album string, format domain.Format, quantity int, externalID string) *domain.CatalogEntry {
	t.Helper()
	entry, err := e.catalog.CreateEntry(context.Background(), domain.CatalogEntryInput{
		Artist:   artist,
		Album:    album,
		Price:    decimal.RequireFromString("24.99"),
		Quantity: quantity,
		Format:   format,
		Category: domain.CategoryRock,
	}, externalID)
	require.NoError(t, err)
	return entry
}

func (e *testEnv) stock(t *testing.T, id string) int {
	t.Helper()
	entry, err := e.catalogs.FindByID(context.Background(), nil, id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	return entry.Quantity
}

var (
	_ port.MetadataSource  = (*fakeSource)(nil)
	_ port.CacheRepository = failingCache{}
)
