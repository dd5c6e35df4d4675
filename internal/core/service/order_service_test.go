package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

func TestPlaceOrder_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	entry := env.createEntry(t, "Radiohead", "OK Computer", domain.FormatVinyl, 10, "")

	order, err := env.ordering.PlaceOrder(ctx, entry.ID, 3)
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, entry.ID, order.CatalogEntryID)
	assert.Equal(t, 3, order.Quantity)
	assert.Equal(t, 7, env.stock(t, entry.ID))

	page, err := env.ordering.FindOrders(ctx, domain.OrderFilter{CatalogEntryID: entry.ID})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, order.ID, page.Data[0].ID)
	assert.Equal(t, "OK Computer", page.Data[0].CatalogEntry.Album)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	env := newTestEnv(t)
	entry := env.createEntry(t, "Radiohead", "Kid A", domain.FormatCD, 2, "")

	_, err := env.ordering.PlaceOrder(context.Background(), entry.ID, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Contains(t, err.Error(), "insufficient stock")

	assert.Equal(t, 2, env.stock(t, entry.ID))
	page, err := env.ordering.FindOrders(context.Background(), domain.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Pagination.Total)
}

func TestPlaceOrder_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ordering.PlaceOrder(context.Background(), "missing", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPlaceOrder_SellOutThenReject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	entry := env.createEntry(t, "The Beatles", "Abbey Road", domain.FormatVinyl, 10, "")

	_, err := env.ordering.PlaceOrder(ctx, entry.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, env.stock(t, entry.ID))

	_, err = env.ordering.PlaceOrder(ctx, entry.ID, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Contains(t, err.Error(), "insufficient stock")
	assert.Equal(t, 0, env.stock(t, entry.ID))
}

func TestPlaceOrder_ConcurrentOrdersNeverOversell(t *testing.T) {
	env := newTestEnv(t)
	entry := env.createEntry(t, "Portishead", "Dummy", domain.FormatVinyl, 5, "")

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ordering.PlaceOrder(context.Background(), entry.ID, 3)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(1), conflicts.Load())
	assert.Equal(t, 2, env.stock(t, entry.ID))
}

func TestPlaceOrder_HighConcurrency(t *testing.T) {
	env := newTestEnv(t)
	const stock = 100
	entry := env.createEntry(t, "Massive Attack", "Mezzanine", domain.FormatCD, stock, "")

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < 250; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.ordering.PlaceOrder(context.Background(), entry.ID, 1); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(stock), successes.Load())
	assert.Equal(t, 0, env.stock(t, entry.ID))
}

func TestPlaceOrder_InvalidatesSearchResults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	entry := env.createEntry(t, "Björk", "Homogenic", domain.FormatVinyl, 4, "")

	filter := domain.CatalogFilter{Artist: "björk"}
	page, err := env.catalog.FindEntries(ctx, filter)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, 4, page.Data[0].Quantity)

	_, err = env.ordering.PlaceOrder(ctx, entry.ID, 1)
	require.NoError(t, err)

	page, err = env.catalog.FindEntries(ctx, filter)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, 3, page.Data[0].Quantity)
}

func TestPlaceOrder_StorageFailureIsInternal(t *testing.T) {
	env := newTestEnv(t)
	entry := env.createEntry(t, "Slowdive", "Souvlaki", domain.FormatCD, 5, "")

	svc := NewOrderService(env.store, env.catalogs, failingOrderRepo{env.orders}, env.cache, zap.NewNop(), nil)

	_, err := svc.PlaceOrder(context.Background(), entry.ID, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInternal))
	assert.False(t, errors.Is(err, errBackend))
	assert.NotContains(t, err.Error(), errBackend.Error())

	// The failed placement rolled back and released the writer.
	assert.Equal(t, 5, env.stock(t, entry.ID))
	_, err = env.ordering.PlaceOrder(context.Background(), entry.ID, 1)
	require.NoError(t, err)
}

func TestPlaceOrder_CacheFailureDoesNotFailOrder(t *testing.T) {
	env := newTestEnv(t)
	entry := env.createEntry(t, "Low", "Things We Lost in the Fire", domain.FormatVinyl, 2, "")

	broken := NewCatalogCache(failingCache{}, zap.NewNop(), nil)
	svc := NewOrderService(env.store, env.catalogs, env.orders, broken, zap.NewNop(), nil)

	_, err := svc.PlaceOrder(context.Background(), entry.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, env.stock(t, entry.ID))
}

func TestFindOrders_StorageFailureIsInternal(t *testing.T) {
	env := newTestEnv(t)
	svc := NewOrderService(env.store, env.catalogs, failingOrderRepo{env.orders}, env.cache, zap.NewNop(), nil)

	_, err := svc.FindOrders(context.Background(), domain.OrderFilter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInternal))
}

// failingOrderRepo fails every write and search but delegates reads.
type failingOrderRepo struct {
	port.OrderRepository
}

func (failingOrderRepo) Create(context.Context, port.Tx, *domain.Order) error {
	return errBackend
}

func (failingOrderRepo) Search(context.Context, domain.OrderFilter) ([]domain.OrderView, int, error) {
	return nil, 0, errBackend
}
