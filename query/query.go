// Package query implements tender search over the latest snapshot.
package query

import (
	"strconv"
	"strings"

	"tender-notifier/pkg/tender"
)

// DefaultLimit is the page size when none is requested.
const DefaultLimit = 200

// Params is a parsed search request.
type Params struct {
	Query string
	Page  int
	Limit int
}

// ParseParams reads query, page and limit from raw strings.
// Missing or invalid numbers fall back to the defaults. The query is trimmed,
// so a whitespace-only query is empty and filters nothing.
func ParseParams(q, page, limit string) Params {
	p := Params{
		Query: strings.TrimSpace(q),
		Page:  1,
		Limit: DefaultLimit,
	}
	if n, err := strconv.Atoi(strings.TrimSpace(page)); err == nil && n >= 1 {
		p.Page = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(limit)); err == nil && n >= 1 {
		p.Limit = n
	}
	return p
}

// Filter returns the tenders whose title, organisation or ref_no contain q,
// case-insensitively. An empty q returns the input unchanged.
func Filter(tenders []tender.Tender, q string) []tender.Tender {
	if q == "" {
		return tenders
	}
	needle := strings.ToLower(q)
	out := make([]tender.Tender, 0)
	for _, t := range tenders {
		if strings.Contains(strings.ToLower(t.Title), needle) ||
			strings.Contains(strings.ToLower(t.Organisation), needle) ||
			strings.Contains(strings.ToLower(t.RefNo), needle) {
			out = append(out, t)
		}
	}
	return out
}

// Page is one slice of a filtered result.
type Page struct {
	Items   []tender.Tender
	Total   int
	HasMore bool
}

// Paginate returns the [(page-1)*limit, page*limit) window of tenders.
// page and limit must be >= 1. Offsets are compared by division so any
// page and limit an int can hold are accepted without overflow.
func Paginate(tenders []tender.Tender, page, limit int) Page {
	total := len(tenders)
	start := total
	if page-1 <= total/limit {
		start = min((page-1)*limit, total)
	}
	end := total
	if limit < total-start {
		end = start + limit
	}
	items := make([]tender.Tender, end-start)
	copy(items, tenders[start:end])
	return Page{
		Items:   items,
		Total:   total,
		HasMore: end < total,
	}
}

// Run filters and paginates in one step.
func Run(tenders []tender.Tender, p Params) Page {
	return Paginate(Filter(tenders, p.Query), p.Page, p.Limit)
}
