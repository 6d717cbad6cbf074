package tgui

import "fmt"

// Page is one window of a paginated slice.
type Page[T any] struct {
	Items   []T
	Index   int // 0-based, clamped
	Pages   int
	HasPrev bool
	HasNext bool
}

// Paginate returns the requested page of items. Out-of-range indexes are
// clamped to the last page so a shrinking list never yields an empty view
// while items remain.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = 10
	}
	total := len(items)
	pages := (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	if page >= pages {
		page = pages - 1
	}
	if page < 0 {
		page = 0
	}
	start := page * size
	end := start + size
	if end > total {
		end = total
	}
	return Page[T]{
		Items:   items[start:end],
		Index:   page,
		Pages:   pages,
		HasPrev: page > 0,
		HasNext: end < total,
	}
}

// PageLabel returns a compact pagination label, e.g. "Page 2/3".
func PageLabel(page, pages int) string {
	if pages <= 0 {
		pages = 1
	}
	return fmt.Sprintf("Page %d/%d", page+1, pages)
}
