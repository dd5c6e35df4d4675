package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/metrics"
	"github.com/rl1809/record-store/internal/port"
)

type placementState string

const (
	stateStarted          placementState = "started"
	stateStockChecked     placementState = "stock_checked"
	stateOrderInserted    placementState = "order_inserted"
	stateStockDecremented placementState = "stock_decremented"
	stateCommitted        placementState = "committed"
	stateAborted          placementState = "aborted"
)

type OrderService struct {
	tx      port.Transactor
	catalog port.CatalogRepository
	orders  port.OrderRepository
	cache   *CatalogCache
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewOrderService(
	tx port.Transactor,
	catalog port.CatalogRepository,
	orders port.OrderRepository,
	cache *CatalogCache,
	logger *zap.Logger,
	m *metrics.Metrics,
) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		tx:      tx,
		catalog: catalog,
		orders:  orders,
		cache:   cache,
		logger:  logger,
		metrics: m,
	}
}

// PlaceOrder reserves quantity units of a catalog entry. The entry row stays
// locked from the stock check until commit, so concurrent placements against
// the same entry are applied one at a time.
func (s *OrderService) PlaceOrder(ctx context.Context, catalogEntryID string, quantity int) (*domain.Order, error) {
	state := stateStarted
	fail := func(op string, err error) error {
		s.metrics.OrderPlaced("error")
		s.logger.Error("place order aborted",
			zap.String("op", op),
			zap.String("entry_id", catalogEntryID),
			zap.Int("quantity", quantity),
			zap.String("state", string(state)),
			zap.Error(err),
		)
		return fmt.Errorf("%w: failed to place order", domain.ErrInternal)
	}

	tx, err := s.tx.BeginTx(ctx)
	if err != nil {
		return nil, fail("begin", err)
	}
	defer func() {
		if state != stateCommitted {
			_ = tx.Rollback()
		}
	}()

	entry, err := s.catalog.FindByID(ctx, tx, catalogEntryID)
	if err != nil {
		return nil, fail("find entry", err)
	}
	if entry == nil {
		s.metrics.OrderPlaced("not_found")
		state = stateAborted
		return nil, fmt.Errorf("%w: catalog entry %s", domain.ErrNotFound, catalogEntryID)
	}
	if quantity > entry.Quantity {
		s.metrics.OrderPlaced("conflict")
		s.logger.Info("place order rejected",
			zap.String("entry_id", catalogEntryID),
			zap.Int("quantity", quantity),
			zap.Int("available", entry.Quantity),
		)
		state = stateAborted
		return nil, fmt.Errorf("%w: insufficient stock for %s - %s (%s): requested %d, available %d",
			domain.ErrConflict, entry.Artist, entry.Album, entry.Format, quantity, entry.Quantity)
	}
	state = stateStockChecked

	order := &domain.Order{
		ID:             uuid.NewString(),
		CatalogEntryID: catalogEntryID,
		Quantity:       quantity,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.orders.Create(ctx, tx, order); err != nil {
		return nil, fail("insert order", err)
	}
	state = stateOrderInserted

	remaining := entry.Quantity - quantity
	updated, err := s.catalog.Update(ctx, tx, catalogEntryID, domain.CatalogEntryPatch{Quantity: &remaining})
	if err != nil {
		return nil, fail("decrement stock", err)
	}
	if updated == nil {
		return nil, fail("decrement stock", fmt.Errorf("entry %s vanished under lock", catalogEntryID))
	}
	state = stateStockDecremented

	if err := tx.Commit(); err != nil {
		return nil, fail("commit", err)
	}
	state = stateCommitted

	s.cache.InvalidateSearchResults(ctx)
	s.metrics.OrderPlaced("success")
	return order, nil
}

func (s *OrderService) FindOrders(ctx context.Context, filter domain.OrderFilter) (*domain.Page[domain.OrderView], error) {
	filter.Page, filter.Size = normalizePage(filter.Page, filter.Size)

	views, total, err := s.orders.Search(ctx, filter)
	if err != nil {
		s.logger.Error("search orders", zap.String("entry_id", filter.CatalogEntryID), zap.Error(err))
		return nil, fmt.Errorf("%w: failed to search orders", domain.ErrInternal)
	}
	return domain.NewPage(views, filter.Page, filter.Size, total), nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = domain.DefaultPage
	}
	if size <= 0 {
		size = domain.DefaultPageSize
	}
	return page, size
}
