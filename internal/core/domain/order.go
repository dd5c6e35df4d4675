package domain

import "time"

const (
	MinOrderQuantity = 1
	MaxOrderQuantity = 100
)

type Order struct {
	ID             string    `json:"id"`
	CatalogEntryID string    `json:"catalog_entry_id"`
	Quantity       int       `json:"quantity"`
	CreatedAt      time.Time `json:"created_at"`
}

// CatalogEntrySummary is the subset of an entry shown next to its orders.
type CatalogEntrySummary struct {
	ID     string `json:"id"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
	Format Format `json:"format"`
}

type OrderView struct {
	Order
	CatalogEntry CatalogEntrySummary `json:"catalog_entry"`
}

type OrderPatch struct {
	Quantity *int
}

type OrderFilter struct {
	Page           int
	Size           int
	CatalogEntryID string
}
