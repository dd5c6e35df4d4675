package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/rl1809/record-store/internal/core/domain"
)

type fakeOrderService struct {
	mu       sync.Mutex
	placeErr error
	findErr  error
	placed   []domain.Order
	filter   domain.OrderFilter
}

func (f *fakeOrderService) PlaceOrder(ctx context.Context, catalogEntryID string, quantity int) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.placeErr != nil {
		return nil, f.placeErr
	}
	order := domain.Order{ID: fmt.Sprintf("order-%d", len(f.placed)+1), CatalogEntryID: catalogEntryID, Quantity: quantity}
	f.placed = append(f.placed, order)
	return &order, nil
}

func (f *fakeOrderService) FindOrders(ctx context.Context, filter domain.OrderFilter) (*domain.Page[domain.OrderView], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.filter = filter
	if f.findErr != nil {
		return nil, f.findErr
	}
	views := make([]domain.OrderView, 0, len(f.placed))
	for _, o := range f.placed {
		views = append(views, domain.OrderView{Order: o})
	}
	return domain.NewPage(views, filter.Page, filter.Size, len(views)), nil
}

type fakeCatalogService struct {
	mu         sync.Mutex
	err        error
	entries    map[string]domain.CatalogEntry
	created    []domain.CatalogEntryInput
	externalID string
	patch      domain.CatalogEntryPatch
	filter     domain.CatalogFilter
}

func newFakeCatalogService() *fakeCatalogService {
	return &fakeCatalogService{entries: make(map[string]domain.CatalogEntry)}
}

func (f *fakeCatalogService) CreateEntry(ctx context.Context, in domain.CatalogEntryInput, externalID string) (*domain.CatalogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, in)
	f.externalID = externalID
	entry := domain.CatalogEntry{
		ID:       fmt.Sprintf("entry-%d", len(f.created)),
		Artist:   in.Artist,
		Album:    in.Album,
		Price:    in.Price,
		Quantity: in.Quantity,
		Format:   in.Format,
		Category: in.Category,
	}
	f.entries[entry.ID] = entry
	return &entry, nil
}

func (f *fakeCatalogService) UpdateEntry(ctx context.Context, id string, patch domain.CatalogEntryPatch, externalID string) (*domain.CatalogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	f.patch = patch
	f.externalID = externalID
	entry, ok := f.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: catalog entry %s", domain.ErrNotFound, id)
	}
	entry = patch.Apply(entry)
	f.entries[id] = entry
	return &entry, nil
}

func (f *fakeCatalogService) FindEntries(ctx context.Context, filter domain.CatalogFilter) (*domain.Page[domain.CatalogEntry], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	data := make([]domain.CatalogEntry, 0, len(f.entries))
	for _, e := range f.entries {
		data = append(data, e)
	}
	return domain.NewPage(data, filter.Page, filter.Size, len(data)), nil
}

func (f *fakeCatalogService) GetEntry(ctx context.Context, id string) (*domain.CatalogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	entry, ok := f.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: catalog entry %s", domain.ErrNotFound, id)
	}
	return &entry, nil
}

var (
	_ OrderService   = (*fakeOrderService)(nil)
	_ CatalogService = (*fakeCatalogService)(nil)
)
