package query

const DefaultPageSize = 10

// PageSizeOptions are the page sizes offered to users.
var PageSizeOptions = []int{10, 20, 50, 100}

// Page is one slice of an ordered result.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// IsValidPageSize reports whether n is one of PageSizeOptions.
func IsValidPageSize(n int) bool {
	for _, opt := range PageSizeOptions {
		if n == opt {
			return true
		}
	}
	return false
}

// TotalPages is ceil(totalItems/pageSize); 0 for an empty result.
func TotalPages(totalItems, pageSize int) int {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if totalItems <= 0 {
		return 0
	}
	return (totalItems + pageSize - 1) / pageSize
}

// ClampPage returns page moved into the valid range: the last page when it
// overshoots, and 1 for an empty result or a page below 1.
func ClampPage(page, totalItems, pageSize int) int {
	last := TotalPages(totalItems, pageSize)
	if page > last {
		page = last
	}
	if page < 1 {
		page = 1
	}
	return page
}

// Paginate returns the clamped page of items. Items of the page are copied.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	total := len(items)
	page = ClampPage(page, total, pageSize)
	start := (page - 1) * pageSize
	end := min(start+pageSize, total)
	if start > end {
		start = end
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return Page[T]{
		Items:      out,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: TotalPages(total, pageSize),
	}
}

// SliceLen is the visible length of page under the unclamped formula
// min(pageSize, max(0, total-(page-1)*pageSize)).
func SliceLen(total, page, pageSize int) int {
	return min(pageSize, max(0, total-(page-1)*pageSize))
}
