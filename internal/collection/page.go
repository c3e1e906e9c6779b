package collection

import "github.com/KevinKickass/PumpFleet/internal/types"

// maxVisiblePages is the largest page count shown without ellipses.
const maxVisiblePages = 5

// PageLink is one entry of the pagination bar. Ellipsis entries carry no
// page number.
type PageLink struct {
	Number   int  `json:"number,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
	Active   bool `json:"active,omitempty"`
}

// Page is one page of the displayed collection.
type Page struct {
	Items      []types.Pump `json:"items"`
	Number     int          `json:"page"`
	Size       int          `json:"page_size"`
	TotalItems int          `json:"total_items"`
	TotalPages int          `json:"total_pages"`
	Links      []PageLink   `json:"links"`
}

// Paginate slices pumps into the requested page. The page number is clamped
// to [1, TotalPages]; an empty list has one empty page.
func Paginate(pumps []types.Pump, number, size int) Page {
	if size <= 0 {
		size = 1
	}

	total := len(pumps)
	pages := (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	number = min(max(number, 1), pages)

	start := (number - 1) * size
	end := min(start+size, total)

	items := make([]types.Pump, 0, end-start)
	items = append(items, pumps[start:end]...)

	return Page{
		Items:      items,
		Number:     number,
		Size:       size,
		TotalItems: total,
		TotalPages: pages,
		Links:      PageWindow(number, pages),
	}
}

// PageWindow lays out the pagination bar. Up to five pages are all listed.
// Beyond that the bar holds the first page, the current page with one
// neighbour on each side, the last page, and an ellipsis for each gap.
// A single page needs no bar.
func PageWindow(current, total int) []PageLink {
	if total <= 1 {
		return nil
	}

	link := func(n int) PageLink {
		return PageLink{Number: n, Active: n == current}
	}

	if total <= maxVisiblePages {
		links := make([]PageLink, 0, total)
		for i := 1; i <= total; i++ {
			links = append(links, link(i))
		}
		return links
	}

	links := []PageLink{link(1)}
	if current > 3 {
		links = append(links, PageLink{Ellipsis: true})
	}

	start := max(2, current-1)
	end := min(total-1, current+1)
	for i := start; i <= end; i++ {
		links = append(links, link(i))
	}

	if current < total-2 {
		links = append(links, PageLink{Ellipsis: true})
	}
	return append(links, link(total))
}
