package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Format string

const (
	FormatVinyl    Format = "VINYL"
	FormatCD       Format = "CD"
	FormatCassette Format = "CASSETTE"
	FormatDigital  Format = "DIGITAL"
)

func (f Format) Valid() bool {
	switch f {
	case FormatVinyl, FormatCD, FormatCassette, FormatDigital:
		return true
	}
	return false
}

type Category string

const (
	CategoryRock        Category = "ROCK"
	CategoryPop         Category = "POP"
	CategoryJazz        Category = "JAZZ"
	CategoryClassical   Category = "CLASSICAL"
	CategoryHipHop      Category = "HIPHOP"
	CategoryAlternative Category = "ALTERNATIVE"
	CategoryIndie       Category = "INDIE"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryRock, CategoryPop, CategoryJazz, CategoryClassical,
		CategoryHipHop, CategoryAlternative, CategoryIndie:
		return true
	}
	return false
}

// CatalogEntry is one sellable record. Quantity is the stock on hand and is
// decremented by order placement.
type CatalogEntry struct {
	ID         string          `json:"id"`
	Artist     string          `json:"artist"`
	Album      string          `json:"album"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	Format     Format          `json:"format"`
	Category   Category        `json:"category"`
	ExternalID string          `json:"external_id,omitempty"`
	Tracks     []Track         `json:"tracks"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type Track struct {
	Position         int    `json:"position"`
	Title            string `json:"title"`
	LengthMs         int    `json:"length_ms"`
	FirstReleaseDate string `json:"first_release_date"`
}

// CatalogEntryInput carries the caller-supplied fields of a new entry.
type CatalogEntryInput struct {
	Artist   string
	Album    string
	Price    decimal.Decimal
	Quantity int
	Format   Format
	Category Category
}

// CatalogEntryPatch is a partial update: nil fields are left unchanged.
// Tracks, when set, replaces the whole track list.
type CatalogEntryPatch struct {
	Artist     *string
	Album      *string
	Price      *decimal.Decimal
	Quantity   *int
	Format     *Format
	Category   *Category
	ExternalID *string
	Tracks     *[]Track
}

func (p CatalogEntryPatch) IsEmpty() bool {
	return p.Artist == nil && p.Album == nil && p.Price == nil && p.Quantity == nil &&
		p.Format == nil && p.Category == nil && p.ExternalID == nil && p.Tracks == nil
}

// Apply returns a copy of e with the non-nil patch fields merged in.
func (p CatalogEntryPatch) Apply(e CatalogEntry) CatalogEntry {
	if p.Artist != nil {
		e.Artist = *p.Artist
	}
	if p.Album != nil {
		e.Album = *p.Album
	}
	if p.Price != nil {
		e.Price = *p.Price
	}
	if p.Quantity != nil {
		e.Quantity = *p.Quantity
	}
	if p.Format != nil {
		e.Format = *p.Format
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.ExternalID != nil {
		e.ExternalID = *p.ExternalID
	}
	if p.Tracks != nil {
		e.Tracks = append([]Track(nil), (*p.Tracks)...)
	}
	return e
}

// CatalogFilter selects a page of catalog entries. Page and Size drive
// pagination only; the remaining fields narrow the result set.
type CatalogFilter struct {
	Page     int
	Size     int
	Query    string
	Artist   string
	Album    string
	Format   Format
	Category Category
}
