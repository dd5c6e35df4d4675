package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

const catalogColumns = `id, artist, album, price, quantity, format, category, external_id, tracks, created_at, updated_at`

type SQLCatalogRepository struct {
	store *SQLStore
}

func NewSQLCatalogRepository(store *SQLStore) *SQLCatalogRepository {
	return &SQLCatalogRepository{store: store}
}

func (r *SQLCatalogRepository) Create(ctx context.Context, tx port.Tx, entry *domain.CatalogEntry) error {
	q, err := r.store.conn(tx)
	if err != nil {
		return err
	}

	tracks, err := marshalTracks(entry.Tracks)
	if err != nil {
		return err
	}

	b := r.store.builder()
	b.write(`INSERT INTO catalog_entries (`, catalogColumns, `) VALUES (`,
		b.arg(entry.ID), ", ",
		b.arg(entry.Artist), ", ",
		b.arg(entry.Album), ", ",
		b.arg(entry.Price), ", ",
		b.arg(entry.Quantity), ", ",
		b.arg(string(entry.Format)), ", ",
		b.arg(string(entry.Category)), ", ",
		b.arg(nullString(entry.ExternalID)), ", ",
		b.arg(tracks), ", ",
		b.arg(entry.CreatedAt), ", ",
		b.arg(entry.UpdatedAt), ")")

	if _, err := q.ExecContext(ctx, b.String(), b.args...); err != nil {
		if r.store.dialect.isUniqueViolation(err) {
			return port.ErrUniqueViolation
		}
		return fmt.Errorf("insert catalog entry: %w", err)
	}
	return nil
}

func (r *SQLCatalogRepository) FindByID(ctx context.Context, tx port.Tx, id string) (*domain.CatalogEntry, error) {
	q, err := r.store.conn(tx)
	if err != nil {
		return nil, err
	}

	b := r.store.builder()
	b.write(`SELECT `, catalogColumns, ` FROM catalog_entries WHERE id = `, b.arg(id))
	if tx != nil {
		b.write(` FOR UPDATE`)
	}

	entry, err := scanCatalogEntry(q.QueryRowContext(ctx, b.String(), b.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query catalog entry: %w", err)
	}
	return entry, nil
}

func (r *SQLCatalogRepository) Update(ctx context.Context, tx port.Tx, id string, patch domain.CatalogEntryPatch) (*domain.CatalogEntry, error) {
	q, err := r.store.conn(tx)
	if err != nil {
		return nil, err
	}

	b := r.store.builder()
	b.write(`UPDATE catalog_entries SET updated_at = `, b.arg(time.Now().UTC()))
	if patch.Artist != nil {
		b.write(`, artist = `, b.arg(*patch.Artist))
	}
	if patch.Album != nil {
		b.write(`, album = `, b.arg(*patch.Album))
	}
	if patch.Price != nil {
		b.write(`, price = `, b.arg(*patch.Price))
	}
	if patch.Quantity != nil {
		b.write(`, quantity = `, b.arg(*patch.Quantity))
	}
	if patch.Format != nil {
		b.write(`, format = `, b.arg(string(*patch.Format)))
	}
	if patch.Category != nil {
		b.write(`, category = `, b.arg(string(*patch.Category)))
	}
	if patch.ExternalID != nil {
		b.write(`, external_id = `, b.arg(nullString(*patch.ExternalID)))
	}
	if patch.Tracks != nil {
		tracks, err := marshalTracks(*patch.Tracks)
		if err != nil {
			return nil, err
		}
		b.write(`, tracks = `, b.arg(tracks))
	}
	b.write(` WHERE id = `, b.arg(id))

	if _, err := q.ExecContext(ctx, b.String(), b.args...); err != nil {
		if r.store.dialect.isUniqueViolation(err) {
			return nil, port.ErrUniqueViolation
		}
		return nil, fmt.Errorf("update catalog entry: %w", err)
	}

	return r.FindByID(ctx, tx, id)
}

func (r *SQLCatalogRepository) Delete(ctx context.Context, tx port.Tx, id string) (bool, error) {
	q, err := r.store.conn(tx)
	if err != nil {
		return false, err
	}

	b := r.store.builder()
	b.write(`DELETE FROM catalog_entries WHERE id = `, b.arg(id))

	result, err := q.ExecContext(ctx, b.String(), b.args...)
	if err != nil {
		return false, fmt.Errorf("delete catalog entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *SQLCatalogRepository) Search(ctx context.Context, filter domain.CatalogFilter) ([]domain.CatalogEntry, int, error) {
	var (
		entries []domain.CatalogEntry
		total   int
	)

	err := r.store.readSnapshot(ctx, func(q querier) error {
		count := r.store.builder()
		count.write(`SELECT COUNT(*) FROM catalog_entries`)
		catalogWhere(count, filter)
		if err := q.QueryRowContext(ctx, count.String(), count.args...).Scan(&total); err != nil {
			return fmt.Errorf("count catalog entries: %w", err)
		}

		page := r.store.builder()
		page.write(`SELECT `, catalogColumns, ` FROM catalog_entries`)
		catalogWhere(page, filter)
		page.write(` ORDER BY created_at DESC, id DESC LIMIT `, page.arg(filter.Size),
			` OFFSET `, page.arg(domain.Offset(filter.Page, filter.Size)))

		rows, err := q.QueryContext(ctx, page.String(), page.args...)
		if err != nil {
			return fmt.Errorf("query catalog entries: %w", err)
		}
		defer rows.Close()

		entries = make([]domain.CatalogEntry, 0, filter.Size)
		for rows.Next() {
			entry, err := scanCatalogEntry(rows)
			if err != nil {
				return fmt.Errorf("scan catalog entry: %w", err)
			}
			entries = append(entries, *entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func catalogWhere(b *sqlBuilder, filter domain.CatalogFilter) {
	sep := " WHERE "
	next := func() string {
		s := sep
		sep = " AND "
		return s
	}

	if filter.Query != "" {
		b.write(next(), b.dialect.textSearch(b.arg(filter.Query)))
	}
	if filter.Artist != "" {
		b.write(next(), `LOWER(artist) LIKE `, b.arg(likePattern(filter.Artist)))
	}
	if filter.Album != "" {
		b.write(next(), `LOWER(album) LIKE `, b.arg(likePattern(filter.Album)))
	}
	if filter.Format != "" {
		b.write(next(), `format = `, b.arg(string(filter.Format)))
	}
	if filter.Category != "" {
		b.write(next(), `category = `, b.arg(string(filter.Category)))
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCatalogEntry(row rowScanner) (*domain.CatalogEntry, error) {
	var (
		entry            domain.CatalogEntry
		format, category string
		externalID       sql.NullString
		tracks           []byte
	)
	if err := row.Scan(&entry.ID, &entry.Artist, &entry.Album, &entry.Price, &entry.Quantity,
		&format, &category, &externalID, &tracks, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return nil, err
	}
	entry.Format = domain.Format(format)
	entry.Category = domain.Category(category)
	entry.ExternalID = externalID.String

	entry.Tracks = []domain.Track{}
	if len(tracks) > 0 {
		if err := json.Unmarshal(tracks, &entry.Tracks); err != nil {
			return nil, fmt.Errorf("decode tracks: %w", err)
		}
	}
	return &entry, nil
}

func marshalTracks(tracks []domain.Track) (string, error) {
	if tracks == nil {
		tracks = []domain.Track{}
	}
	raw, err := json.Marshal(tracks)
	if err != nil {
		return "", fmt.Errorf("encode tracks: %w", err)
	}
	return string(raw), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ port.CatalogRepository = (*SQLCatalogRepository)(nil)
