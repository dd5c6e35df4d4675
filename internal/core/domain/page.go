package domain

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MinPageSize     = 10
	MaxPageSize     = 100
)

type Pagination struct {
	Page      int `json:"page"`
	Size      int `json:"size"`
	Total     int `json:"total"`
	PageCount int `json:"page_count"`
}

func NewPagination(page, size, total int) Pagination {
	p := Pagination{Page: page, Size: size, Total: total}
	if size > 0 {
		p.PageCount = (total + size - 1) / size
	}
	return p
}

type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

func NewPage[T any](data []T, page, size, total int) *Page[T] {
	if data == nil {
		data = []T{}
	}
	return &Page[T]{Data: data, Pagination: NewPagination(page, size, total)}
}

// Offset returns the number of rows preceding the given 1-based page.
func Offset(page, size int) int {
	if page < 1 {
		return 0
	}
	return (page - 1) * size
}
