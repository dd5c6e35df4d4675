package port

import (
	"context"
	"errors"

	"github.com/rl1809/record-store/internal/core/domain"
)

// ErrUniqueViolation is returned when a write collides with the
// (artist, album, format) uniqueness constraint.
var ErrUniqueViolation = errors.New("unique constraint violation")

// Tx is a transaction handle owned by a single workflow invocation.
// Rollback after a successful Commit is a no-op.
type Tx interface {
	Commit() error
	Rollback() error
}

type Transactor interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Every method accepts an optional Tx; nil runs the statement on its own.
type CatalogRepository interface {
	// Create persists a new entry, returning ErrUniqueViolation on a duplicate triple
	Create(ctx context.Context, tx Tx, entry *domain.CatalogEntry) error

	// FindByID returns nil, nil when the entry does not exist. Inside a
	// transaction the row stays locked until the transaction ends.
	FindByID(ctx context.Context, tx Tx, id string) (*domain.CatalogEntry, error)

	// Update merges the non-nil patch fields and returns the updated entry, or nil, nil if absent
	Update(ctx context.Context, tx Tx, id string, patch domain.CatalogEntryPatch) (*domain.CatalogEntry, error)

	Delete(ctx context.Context, tx Tx, id string) (bool, error)

	// Search returns one page of matching entries and the total match count
	Search(ctx context.Context, filter domain.CatalogFilter) ([]domain.CatalogEntry, int, error)
}

type OrderRepository interface {
	Create(ctx context.Context, tx Tx, order *domain.Order) error

	FindByID(ctx context.Context, tx Tx, id string) (*domain.Order, error)

	Update(ctx context.Context, tx Tx, id string, patch domain.OrderPatch) (*domain.Order, error)

	Delete(ctx context.Context, tx Tx, id string) (bool, error)

	// Search returns one page of orders joined with their catalog entry summary
	Search(ctx context.Context, filter domain.OrderFilter) ([]domain.OrderView, int, error)
}
