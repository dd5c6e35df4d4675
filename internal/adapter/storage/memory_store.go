package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

var (
	ErrCheckViolation      = errors.New("check constraint violation")
	ErrForeignKeyViolation = errors.New("foreign key violation")
)

// MemoryStore is an in-process store for local development and tests.
// Writers are serialised: a transaction works on a private snapshot that
// replaces the shared state on commit, so readers never see partial writes.
type MemoryStore struct {
	sem   chan struct{}
	mu    sync.RWMutex
	state *memoryState
}

type memoryState struct {
	entries map[string]domain.CatalogEntry
	orders  map[string]domain.Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sem: make(chan struct{}, 1),
		state: &memoryState{
			entries: make(map[string]domain.CatalogEntry),
			orders:  make(map[string]domain.Order),
		},
	}
}

func (s *MemoryStore) BeginTx(ctx context.Context) (port.Tx, error) {
	return s.begin(ctx)
}

func (s *MemoryStore) begin(ctx context.Context) (*memoryTx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	return &memoryTx{store: s, state: snapshot}, nil
}

func (s *MemoryStore) own(tx port.Tx) (*memoryTx, error) {
	mt, ok := tx.(*memoryTx)
	if !ok || mt.store != s {
		return nil, ErrForeignTx
	}
	if mt.done {
		return nil, errors.New("transaction already finished")
	}
	return mt, nil
}

func (s *MemoryStore) read(tx port.Tx, fn func(st *memoryState) error) error {
	if tx != nil {
		mt, err := s.own(tx)
		if err != nil {
			return err
		}
		return fn(mt.state)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// write applies fn inside tx, or inside a single-statement transaction when tx is nil.
func (s *MemoryStore) write(ctx context.Context, tx port.Tx, fn func(st *memoryState) error) error {
	if tx != nil {
		mt, err := s.own(tx)
		if err != nil {
			return err
		}
		return fn(mt.state)
	}

	auto, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer auto.Rollback()

	if err := fn(auto.state); err != nil {
		return err
	}
	return auto.Commit()
}

type memoryTx struct {
	store *MemoryStore
	state *memoryState
	done  bool
}

func (t *memoryTx) Commit() error {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.store.mu.Lock()
	t.store.state = t.state
	t.store.mu.Unlock()

	t.finish()
	return nil
}

func (t *memoryTx) Rollback() error {
	if !t.done {
		t.finish()
	}
	return nil
}

func (t *memoryTx) finish() {
	t.done = true
	<-t.store.sem
}

func (st *memoryState) clone() *memoryState {
	c := &memoryState{
		entries: make(map[string]domain.CatalogEntry, len(st.entries)),
		orders:  make(map[string]domain.Order, len(st.orders)),
	}
	for k, v := range st.entries {
		c.entries[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	return c
}

func (st *memoryState) checkEntry(e domain.CatalogEntry) error {
	if e.Quantity < 0 || !e.Price.IsPositive() {
		return ErrCheckViolation
	}
	for id, other := range st.entries {
		if id != e.ID && other.Artist == e.Artist && other.Album == e.Album && other.Format == e.Format {
			return port.ErrUniqueViolation
		}
	}
	return nil
}

type MemoryCatalogRepository struct {
	store *MemoryStore
}

func NewMemoryCatalogRepository(store *MemoryStore) *MemoryCatalogRepository {
	return &MemoryCatalogRepository{store: store}
}

func (r *MemoryCatalogRepository) Create(ctx context.Context, tx port.Tx, entry *domain.CatalogEntry) error {
	return r.store.write(ctx, tx, func(st *memoryState) error {
		if _, exists := st.entries[entry.ID]; exists {
			return port.ErrUniqueViolation
		}
		if err := st.checkEntry(*entry); err != nil {
			return err
		}
		st.entries[entry.ID] = copyEntry(*entry)
		return nil
	})
}

func (r *MemoryCatalogRepository) FindByID(ctx context.Context, tx port.Tx, id string) (*domain.CatalogEntry, error) {
	var found *domain.CatalogEntry
	err := r.store.read(tx, func(st *memoryState) error {
		if e, ok := st.entries[id]; ok {
			c := copyEntry(e)
			found = &c
		}
		return nil
	})
	return found, err
}

func (r *MemoryCatalogRepository) Update(ctx context.Context, tx port.Tx, id string, patch domain.CatalogEntryPatch) (*domain.CatalogEntry, error) {
	var updated *domain.CatalogEntry
	err := r.store.write(ctx, tx, func(st *memoryState) error {
		current, ok := st.entries[id]
		if !ok {
			return nil
		}
		next := patch.Apply(current)
		next.UpdatedAt = time.Now().UTC()
		if err := st.checkEntry(next); err != nil {
			return err
		}
		st.entries[id] = next
		c := copyEntry(next)
		updated = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *MemoryCatalogRepository) Delete(ctx context.Context, tx port.Tx, id string) (bool, error) {
	var deleted bool
	err := r.store.write(ctx, tx, func(st *memoryState) error {
		if _, ok := st.entries[id]; !ok {
			return nil
		}
		delete(st.entries, id)
		for oid, o := range st.orders {
			if o.CatalogEntryID == id {
				delete(st.orders, oid)
			}
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (r *MemoryCatalogRepository) Search(ctx context.Context, filter domain.CatalogFilter) ([]domain.CatalogEntry, int, error) {
	var (
		page  []domain.CatalogEntry
		total int
	)
	err := r.store.read(nil, func(st *memoryState) error {
		matched := make([]domain.CatalogEntry, 0)
		for _, e := range st.entries {
			if matchesCatalogFilter(e, filter) {
				matched = append(matched, e)
			}
		}
		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].CreatedAt.After(matched[j].CreatedAt)
			}
			return matched[i].ID > matched[j].ID
		})

		total = len(matched)
		for _, e := range paginate(matched, filter.Page, filter.Size) {
			page = append(page, copyEntry(e))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if page == nil {
		page = []domain.CatalogEntry{}
	}
	return page, total, nil
}

type MemoryOrderRepository struct {
	store *MemoryStore
}

func NewMemoryOrderRepository(store *MemoryStore) *MemoryOrderRepository {
	return &MemoryOrderRepository{store: store}
}

func (r *MemoryOrderRepository) Create(ctx context.Context, tx port.Tx, order *domain.Order) error {
	return r.store.write(ctx, tx, func(st *memoryState) error {
		if _, exists := st.orders[order.ID]; exists {
			return port.ErrUniqueViolation
		}
		if _, ok := st.entries[order.CatalogEntryID]; !ok {
			return ErrForeignKeyViolation
		}
		if order.Quantity < domain.MinOrderQuantity || order.Quantity > domain.MaxOrderQuantity {
			return ErrCheckViolation
		}
		st.orders[order.ID] = *order
		return nil
	})
}

func (r *MemoryOrderRepository) FindByID(ctx context.Context, tx port.Tx, id string) (*domain.Order, error) {
	var found *domain.Order
	err := r.store.read(tx, func(st *memoryState) error {
		if o, ok := st.orders[id]; ok {
			found = &o
		}
		return nil
	})
	return found, err
}

func (r *MemoryOrderRepository) Update(ctx context.Context, tx port.Tx, id string, patch domain.OrderPatch) (*domain.Order, error) {
	var updated *domain.Order
	err := r.store.write(ctx, tx, func(st *memoryState) error {
		o, ok := st.orders[id]
		if !ok {
			return nil
		}
		if patch.Quantity != nil {
			if *patch.Quantity < domain.MinOrderQuantity || *patch.Quantity > domain.MaxOrderQuantity {
				return ErrCheckViolation
			}
			o.Quantity = *patch.Quantity
		}
		st.orders[id] = o
		updated = &o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *MemoryOrderRepository) Delete(ctx context.Context, tx port.Tx, id string) (bool, error) {
	var deleted bool
	err := r.store.write(ctx, tx, func(st *memoryState) error {
		if _, ok := st.orders[id]; ok {
			delete(st.orders, id)
			deleted = true
		}
		return nil
	})
	return deleted, err
}

func (r *MemoryOrderRepository) Search(ctx context.Context, filter domain.OrderFilter) ([]domain.OrderView, int, error) {
	var (
		page  []domain.OrderView
		total int
	)
	err := r.store.read(nil, func(st *memoryState) error {
		matched := make([]domain.OrderView, 0)
		for _, o := range st.orders {
			if filter.CatalogEntryID != "" && o.CatalogEntryID != filter.CatalogEntryID {
				continue
			}
			e, ok := st.entries[o.CatalogEntryID]
			if !ok {
				continue
			}
			matched = append(matched, domain.OrderView{
				Order: o,
				CatalogEntry: domain.CatalogEntrySummary{
					ID:     e.ID,
					Artist: e.Artist,
					Album:  e.Album,
					Format: e.Format,
				},
			})
		}
		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].CreatedAt.After(matched[j].CreatedAt)
			}
			return matched[i].ID > matched[j].ID
		})

		total = len(matched)
		page = paginate(matched, filter.Page, filter.Size)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if page == nil {
		page = []domain.OrderView{}
	}
	return page, total, nil
}

func matchesCatalogFilter(e domain.CatalogEntry, f domain.CatalogFilter) bool {
	if f.Format != "" && e.Format != f.Format {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.Artist != "" && !containsFold(e.Artist, f.Artist) {
		return false
	}
	if f.Album != "" && !containsFold(e.Album, f.Album) {
		return false
	}
	if f.Query != "" {
		haystack := strings.Fields(strings.ToLower(e.Artist + " " + e.Album + " " + string(e.Category)))
		hit := false
		for _, term := range strings.Fields(strings.ToLower(f.Query)) {
			for _, word := range haystack {
				if word == term {
					hit = true
				}
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func paginate[T any](items []T, page, size int) []T {
	offset := domain.Offset(page, size)
	if offset >= len(items) {
		return nil
	}
	end := offset + size
	if size <= 0 || end > len(items) {
		end = len(items)
	}
	return append([]T(nil), items[offset:end]...)
}

func copyEntry(e domain.CatalogEntry) domain.CatalogEntry {
	e.Tracks = append([]domain.Track{}, e.Tracks...)
	return e
}

var (
	_ port.Transactor        = (*MemoryStore)(nil)
	_ port.CatalogRepository = (*MemoryCatalogRepository)(nil)
	_ port.OrderRepository   = (*MemoryOrderRepository)(nil)
)
