package port

import (
	"context"
	"errors"

	"github.com/rl1809/record-store/internal/core/domain"
)

// The source answered, but the release cannot be used. Callers should not
// treat these as the source being unavailable.
var (
	ErrReleaseNotFound = errors.New("release not found")
	ErrInvalidRelease  = errors.New("invalid release")
)

type MetadataSource interface {
	// FetchTrackList returns the ordered track list of an external release
	FetchTrackList(ctx context.Context, externalID string) ([]domain.Track, error)
}
