package cmd

import "fmt"

// paginate returns one page of items and a footer describing it. A page size
// of zero or all disables paging and yields no footer.
func paginate[T any](items []T, page, pageSize int, all bool) ([]T, string) {
	if all || pageSize <= 0 {
		return items, ""
	}
	page = max(page, 1)
	footer := fmt.Sprintf("Showing page %d of %d (%d events)", page, maxPage(len(items), pageSize), len(items))
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}, footer
	}
	end := min(start+pageSize, len(items))
	return items[start:end], footer
}

func maxPage(total, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	return max(1, (total+pageSize-1)/pageSize)
}
