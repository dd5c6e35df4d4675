package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

type CatalogService struct {
	repo     port.CatalogRepository
	cache    *CatalogCache
	resolver *TrackListResolver
	logger   *zap.Logger
}

func NewCatalogService(repo port.CatalogRepository, cache *CatalogCache, resolver *TrackListResolver, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, cache: cache, resolver: resolver, logger: logger}
}

// CreateEntry stores a new entry. When externalID resolves to a non-empty
// track list the id and tracks are stored with it; otherwise both are left
// unset.
func (s *CatalogService) CreateEntry(ctx context.Context, in domain.CatalogEntryInput, externalID string) (*domain.CatalogEntry, error) {
	var tracks []domain.Track
	if externalID != "" {
		tracks = s.resolver.Resolve(ctx, externalID)
	}

	now := time.Now().UTC()
	entry := &domain.CatalogEntry{
		ID:        uuid.NewString(),
		Artist:    in.Artist,
		Album:     in.Album,
		Price:     in.Price,
		Quantity:  in.Quantity,
		Format:    in.Format,
		Category:  in.Category,
		Tracks:    []domain.Track{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(tracks) > 0 {
		entry.ExternalID = externalID
		entry.Tracks = tracks
	}

	if err := s.repo.Create(ctx, nil, entry); err != nil {
		if errors.Is(err, port.ErrUniqueViolation) {
			return nil, duplicateEntryError(entry.Artist, entry.Album, entry.Format)
		}
		s.logger.Error("create catalog entry",
			zap.String("artist", entry.Artist),
			zap.String("album", entry.Album),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: failed to create catalog entry", domain.ErrInternal)
	}

	s.cache.InvalidateSearchResults(ctx)
	return entry, nil
}

// UpdateEntry applies patch to an existing entry. The track list is only
// re-resolved when externalID differs from the stored one.
func (s *CatalogService) UpdateEntry(ctx context.Context, id string, patch domain.CatalogEntryPatch, externalID string) (*domain.CatalogEntry, error) {
	current, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		s.logger.Error("load catalog entry", zap.String("entry_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: failed to update catalog entry", domain.ErrInternal)
	}
	if current == nil {
		return nil, fmt.Errorf("%w: catalog entry %s", domain.ErrNotFound, id)
	}

	patch.ExternalID = nil
	patch.Tracks = nil
	if externalID != "" && externalID != current.ExternalID {
		if tracks := s.resolver.Resolve(ctx, externalID); len(tracks) > 0 {
			patch.ExternalID = &externalID
			patch.Tracks = &tracks
		} else {
			s.logger.Warn("track list unresolved; keeping stored tracks",
				zap.String("entry_id", id),
				zap.String("external_id", externalID),
				zap.String("stored_external_id", current.ExternalID))
		}
	}

	if patch.IsEmpty() {
		return current, nil
	}

	updated, err := s.repo.Update(ctx, nil, id, patch)
	if err != nil {
		if errors.Is(err, port.ErrUniqueViolation) {
			next := patch.Apply(*current)
			return nil, duplicateEntryError(next.Artist, next.Album, next.Format)
		}
		s.logger.Error("update catalog entry", zap.String("entry_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: failed to update catalog entry", domain.ErrInternal)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: catalog entry %s", domain.ErrNotFound, id)
	}

	s.cache.InvalidateSearchResults(ctx)
	return updated, nil
}

// FindEntries serves a page of entries from the cache, falling back to the
// store on a miss.
func (s *CatalogService) FindEntries(ctx context.Context, filter domain.CatalogFilter) (*domain.Page[domain.CatalogEntry], error) {
	filter.Page, filter.Size = normalizePage(filter.Page, filter.Size)

	if page, ok := s.cache.GetSearchResults(ctx, filter); ok {
		return page, nil
	}
	generation := s.cache.SearchGeneration()

	entries, total, err := s.repo.Search(ctx, filter)
	if err != nil {
		s.logger.Error("search catalog", zap.String("query", filter.Query), zap.Error(err))
		return nil, fmt.Errorf("%w: failed to search catalog", domain.ErrInternal)
	}

	page := domain.NewPage(entries, filter.Page, filter.Size, total)
	s.cache.SetSearchResults(ctx, filter, page, generation)
	return page, nil
}

func (s *CatalogService) GetEntry(ctx context.Context, id string) (*domain.CatalogEntry, error) {
	entry, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		s.logger.Error("get catalog entry", zap.String("entry_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: failed to load catalog entry", domain.ErrInternal)
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: catalog entry %s", domain.ErrNotFound, id)
	}
	return entry, nil
}

func duplicateEntryError(artist, album string, format domain.Format) error {
	return fmt.Errorf("%w: catalog entry already exists: %s - %s (%s)", domain.ErrConflict, artist, album, format)
}
