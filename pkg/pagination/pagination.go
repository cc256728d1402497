// Package pagination reads page parameters from requests and describes
// pages in the expense API's wire format.
package pagination

import (
	"net/http"

	"github.com/utafrali/ExpenseGo/pkg/httputil"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
	maxPage        = 1 << 20
)

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// DefaultParams returns the first page at the default size.
func DefaultParams() Params {
	return Params{
		Page:    1,
		PerPage: DefaultPerPage,
		Offset:  0,
	}
}

// FromRequest extracts page and per_page. Malformed values fall back to
// the defaults; per_page above MaxPerPage is capped.
func FromRequest(r *http.Request) Params {
	p := Params{
		Page:    httputil.QueryInt(r, "page", 1, 1, maxPage),
		PerPage: httputil.QueryInt(r, "per_page", DefaultPerPage, 1, MaxPerPage),
	}
	p.Offset = (p.Page - 1) * p.PerPage
	return p
}

// Page describes one page of a listing. prev_num and next_num are null at
// the ends.
type Page struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasPrev bool `json:"has_prev"`
	HasNext bool `json:"has_next"`
	PrevNum *int `json:"prev_num"`
	NextNum *int `json:"next_num"`
}

// NewPage describes the page selected by params out of total items.
func NewPage(total int, params Params) Page {
	pages := total / params.PerPage
	if total%params.PerPage > 0 {
		pages++
	}

	p := Page{
		Page:    params.Page,
		PerPage: params.PerPage,
		Total:   total,
		Pages:   pages,
		HasPrev: params.Page > 1,
		HasNext: params.Page < pages,
	}
	if p.HasPrev {
		prev := params.Page - 1
		p.PrevNum = &prev
	}
	if p.HasNext {
		next := params.Page + 1
		p.NextNum = &next
	}
	return p
}

// Slice returns the items on the page selected by params. A page past the
// end is empty.
func Slice[T any](items []T, params Params) []T {
	start := min(params.Offset, len(items))
	end := min(start+params.PerPage, len(items))
	out := make([]T, 0, end-start)
	return append(out, items[start:end]...)
}
