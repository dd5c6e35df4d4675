package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/metrics"
	"github.com/rl1809/record-store/internal/port"
)

const DefaultResolveTimeout = 5 * time.Second

// TrackListResolver turns an external release id into a track list, going
// to the metadata source only on a cache miss. Failures resolve to nil.
type TrackListResolver struct {
	source  port.MetadataSource
	cache   *CatalogCache
	breaker *Breaker
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewTrackListResolver(
	source port.MetadataSource,
	cache *CatalogCache,
	breaker *Breaker,
	timeout time.Duration,
	logger *zap.Logger,
	m *metrics.Metrics,
) *TrackListResolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackListResolver{
		source:  source,
		cache:   cache,
		breaker: breaker,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

func (r *TrackListResolver) Resolve(ctx context.Context, externalID string) []domain.Track {
	if externalID == "" {
		return nil
	}

	if tracks, ok := r.cache.GetTrackList(ctx, externalID); ok {
		r.metrics.MetadataFetched("cached")
		return tracks
	}

	if r.breaker != nil {
		if err := r.breaker.Allow(); err != nil {
			r.metrics.MetadataFetched("skipped")
			r.logger.Warn("track list fetch skipped", zap.String("external_id", externalID), zap.Error(err))
			return nil
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tracks, err := r.source.FetchTrackList(fetchCtx, externalID)
	r.record(ctx, fetchCtx, err)
	if err != nil {
		r.metrics.MetadataFetched("error")
		r.logger.Warn("fetch track list", zap.String("external_id", externalID), zap.Error(err))
		return nil
	}

	if len(tracks) == 0 {
		r.metrics.MetadataFetched("empty")
		return nil
	}

	r.cache.SetTrackList(ctx, externalID, tracks)
	r.metrics.MetadataFetched("fetched")
	return tracks
}

// record feeds the fetch outcome to the breaker. Only an unreachable or
// failing source counts against it: an unknown or unusable release means the
// source answered, and a caller that gave up says nothing about the source.
func (r *TrackListResolver) record(ctx, fetchCtx context.Context, err error) {
	if r.breaker == nil {
		return
	}
	switch {
	case err == nil:
		r.breaker.Success()
	case ctx.Err() != nil:
		r.breaker.Abandon()
	case fetchCtx.Err() != nil:
		r.breaker.Failure()
	case errors.Is(err, port.ErrReleaseNotFound), errors.Is(err, port.ErrInvalidRelease):
		r.breaker.Success()
	default:
		r.breaker.Failure()
	}
}
