package app

import "github.com/nhle/webmail/internal/model"

// Page is one page of the inbox listing. Start and End are 1-based and
// inclusive for display ("26-50 of 100"); both are 0 when the listing is
// empty.
type Page struct {
	Items   []model.MessageSummary
	Number  int
	PerPage int
	Pages   int
	Start   int
	End     int
	Total   int
}

// HasPrev reports whether a previous page exists.
func (p Page) HasPrev() bool { return p.Number > 1 }

// HasNext reports whether a following page exists.
func (p Page) HasNext() bool { return p.Number < p.Pages }

// Paginate slices items into the requested page. An unsupported perPage
// falls back to defaultPerPage; page is clamped into [1, Pages].
func Paginate(items []model.MessageSummary, page, perPage, defaultPerPage int) Page {
	if !model.ValidPageSize(perPage) {
		perPage = defaultPerPage
	}
	if perPage <= 0 {
		perPage = model.PageSizes[0]
	}

	total := len(items)
	pages := (total + perPage - 1) / perPage
	if pages < 1 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	p := Page{Number: page, PerPage: perPage, Pages: pages, Total: total}
	if total == 0 {
		p.Items = []model.MessageSummary{}
		return p
	}

	from := (page - 1) * perPage
	to := from + perPage
	if to > total {
		to = total
	}
	p.Items = items[from:to]
	p.Start = from + 1
	p.End = to
	return p
}
