package bloggy

import "strconv"

// Page describes a 1-based page of a listing. Out of range page numbers are clamped so that
// a listing always lands on a page that exists.
type Page struct {
	Number   int
	PerPage  int
	Total    int64
	NumPages int
}

func NewPage(raw string, perPage int, total int64) Page {
	if perPage < 1 {
		perPage = 1
	}

	numPages := int((total + int64(perPage) - 1) / int64(perPage))
	if numPages < 1 {
		numPages = 1
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		n = 1
	}
	if n > numPages {
		n = numPages
	}

	return Page{Number: n, PerPage: perPage, Total: total, NumPages: numPages}
}

// Index is the 0-based page number the stores expect.
func (p Page) Index() int {
	return p.Number - 1
}

func (p Page) HasPrev() bool {
	return p.Number > 1
}

func (p Page) HasNext() bool {
	return p.Number < p.NumPages
}

func (p Page) Prev() int {
	return p.Number - 1
}

func (p Page) Next() int {
	return p.Number + 1
}
