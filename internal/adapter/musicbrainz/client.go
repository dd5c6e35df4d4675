package musicbrainz

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rl1809/record-store/internal/config"
	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

const maxBodyBytes = 4 << 20

// ErrMalformedRelease marks a release whose track data cannot be used. It
// wraps port.ErrInvalidRelease.
var ErrMalformedRelease = fmt.Errorf("malformed release: %w", port.ErrInvalidRelease)

type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient builds a release lookup client. The request deadline comes from
// the caller's context; cfg.Timeout is only a transport-level backstop.
func NewClient(cfg config.MusicBrainz, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      httpClient,
	}
}

type releaseDoc struct {
	XMLName xml.Name `xml:"metadata"`
	Release struct {
		Media []struct {
			Tracks []trackDoc `xml:"track-list>track"`
		} `xml:"medium-list>medium"`
	} `xml:"release"`
}

type trackDoc struct {
	Position  string `xml:"position"`
	Length    string `xml:"length"`
	Recording *struct {
		Title            string `xml:"title"`
		Length           string `xml:"length"`
		FirstReleaseDate string `xml:"first-release-date"`
	} `xml:"recording"`
}

// FetchTrackList returns the tracks of the release's first medium in
// document order. Positions are per medium, so later media are not merged.
// An unknown release yields port.ErrReleaseNotFound and an unusable one
// port.ErrInvalidRelease.
func (c *Client) FetchTrackList(ctx context.Context, externalID string) ([]domain.Track, error) {
	endpoint := fmt.Sprintf("%s/release/%s?inc=recordings&fmt=xml", c.baseURL, url.PathEscape(externalID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get release %s: %w", externalID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, fmt.Errorf("get release %s: %w", externalID, port.ErrReleaseNotFound)
	case http.StatusBadRequest:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, fmt.Errorf("get release %s: %w", externalID, port.ErrInvalidRelease)
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, fmt.Errorf("get release %s: unexpected status %d", externalID, resp.StatusCode)
	}

	var doc releaseDoc
	if err := xml.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&doc); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("read release %s: %w", externalID, ctx.Err())
		}
		return nil, fmt.Errorf("%w: decode release %s: %v", ErrMalformedRelease, externalID, err)
	}
	return parseTracks(doc)
}

func parseTracks(doc releaseDoc) ([]domain.Track, error) {
	if len(doc.Release.Media) == 0 {
		return nil, nil
	}

	medium := doc.Release.Media[0]
	tracks := make([]domain.Track, 0, len(medium.Tracks))
	seen := make(map[int]struct{}, len(medium.Tracks))
	for i, t := range medium.Tracks {
		track, err := t.toDomain()
		if err != nil {
			return nil, fmt.Errorf("%w: track %d: %v", ErrMalformedRelease, i+1, err)
		}
		if _, dup := seen[track.Position]; dup {
			return nil, fmt.Errorf("%w: track %d: duplicate position %d", ErrMalformedRelease, i+1, track.Position)
		}
		seen[track.Position] = struct{}{}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

func (t trackDoc) toDomain() (domain.Track, error) {
	position, err := strconv.Atoi(strings.TrimSpace(t.Position))
	if err != nil || position < 1 {
		return domain.Track{}, fmt.Errorf("position %q", t.Position)
	}
	if t.Recording == nil {
		return domain.Track{}, errors.New("missing recording")
	}

	title := strings.TrimSpace(t.Recording.Title)
	if title == "" {
		return domain.Track{}, errors.New("missing title")
	}

	rawLength := strings.TrimSpace(t.Recording.Length)
	if rawLength == "" {
		rawLength = strings.TrimSpace(t.Length)
	}
	length, err := strconv.Atoi(rawLength)
	if err != nil || length < 0 {
		return domain.Track{}, fmt.Errorf("length %q", rawLength)
	}

	released := strings.TrimSpace(t.Recording.FirstReleaseDate)
	if released == "" {
		return domain.Track{}, errors.New("missing first-release-date")
	}

	return domain.Track{
		Position:         position,
		Title:            title,
		LengthMs:         length,
		FirstReleaseDate: released,
	}, nil
}

var _ port.MetadataSource = (*Client)(nil)
