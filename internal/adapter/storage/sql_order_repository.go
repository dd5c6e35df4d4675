package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

type SQLOrderRepository struct {
	store *SQLStore
}

func NewSQLOrderRepository(store *SQLStore) *SQLOrderRepository {
	return &SQLOrderRepository{store: store}
}

func (r *SQLOrderRepository) Create(ctx context.Context, tx port.Tx, order *domain.Order) error {
	q, err := r.store.conn(tx)
	if err != nil {
		return err
	}

	b := r.store.builder()
	b.write(`INSERT INTO orders (id, catalog_entry_id, quantity, created_at) VALUES (`,
		b.arg(order.ID), ", ",
		b.arg(order.CatalogEntryID), ", ",
		b.arg(order.Quantity), ", ",
		b.arg(order.CreatedAt), ")")

	if _, err := q.ExecContext(ctx, b.String(), b.args...); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *SQLOrderRepository) FindByID(ctx context.Context, tx port.Tx, id string) (*domain.Order, error) {
	q, err := r.store.conn(tx)
	if err != nil {
		return nil, err
	}

	b := r.store.builder()
	b.write(`SELECT id, catalog_entry_id, quantity, created_at FROM orders WHERE id = `, b.arg(id))

	var order domain.Order
	err = q.QueryRowContext(ctx, b.String(), b.args...).
		Scan(&order.ID, &order.CatalogEntryID, &order.Quantity, &order.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &order, nil
}

func (r *SQLOrderRepository) Update(ctx context.Context, tx port.Tx, id string, patch domain.OrderPatch) (*domain.Order, error) {
	if patch.Quantity == nil {
		return r.FindByID(ctx, tx, id)
	}

	q, err := r.store.conn(tx)
	if err != nil {
		return nil, err
	}

	b := r.store.builder()
	b.write(`UPDATE orders SET quantity = `, b.arg(*patch.Quantity), ` WHERE id = `, b.arg(id))
	if _, err := q.ExecContext(ctx, b.String(), b.args...); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	return r.FindByID(ctx, tx, id)
}

func (r *SQLOrderRepository) Delete(ctx context.Context, tx port.Tx, id string) (bool, error) {
	q, err := r.store.conn(tx)
	if err != nil {
		return false, err
	}

	b := r.store.builder()
	b.write(`DELETE FROM orders WHERE id = `, b.arg(id))

	result, err := q.ExecContext(ctx, b.String(), b.args...)
	if err != nil {
		return false, fmt.Errorf("delete order: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *SQLOrderRepository) Search(ctx context.Context, filter domain.OrderFilter) ([]domain.OrderView, int, error) {
	var (
		views []domain.OrderView
		total int
	)

	err := r.store.readSnapshot(ctx, func(q querier) error {
		count := r.store.builder()
		count.write(`SELECT COUNT(*) FROM orders o`)
		orderWhere(count, filter)
		if err := q.QueryRowContext(ctx, count.String(), count.args...).Scan(&total); err != nil {
			return fmt.Errorf("count orders: %w", err)
		}

		page := r.store.builder()
		page.write(`SELECT o.id, o.catalog_entry_id, o.quantity, o.created_at, c.artist, c.album, c.format
			FROM orders o JOIN catalog_entries c ON c.id = o.catalog_entry_id`)
		orderWhere(page, filter)
		page.write(` ORDER BY o.created_at DESC, o.id DESC LIMIT `, page.arg(filter.Size),
			` OFFSET `, page.arg(domain.Offset(filter.Page, filter.Size)))

		rows, err := q.QueryContext(ctx, page.String(), page.args...)
		if err != nil {
			return fmt.Errorf("query orders: %w", err)
		}
		defer rows.Close()

		views = make([]domain.OrderView, 0, filter.Size)
		for rows.Next() {
			var (
				v      domain.OrderView
				format string
			)
			if err := rows.Scan(&v.ID, &v.CatalogEntryID, &v.Quantity, &v.CreatedAt,
				&v.CatalogEntry.Artist, &v.CatalogEntry.Album, &format); err != nil {
				return fmt.Errorf("scan order: %w", err)
			}
			v.CatalogEntry.ID = v.CatalogEntryID
			v.CatalogEntry.Format = domain.Format(format)
			views = append(views, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

func orderWhere(b *sqlBuilder, filter domain.OrderFilter) {
	if filter.CatalogEntryID != "" {
		b.write(` WHERE o.catalog_entry_id = `, b.arg(filter.CatalogEntryID))
	}
}

var _ port.OrderRepository = (*SQLOrderRepository)(nil)
