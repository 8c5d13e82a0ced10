package database

import "strings"

// DefaultPerPage is the page size used when ListParams doesn't specify one.
const DefaultPerPage = 20

// ListParams controls pagination, ordering and filtering for listing links.
// Pages are 1-indexed. Search, when non-empty, matches as a case-insensitive
// substring against the slug or the destination URL.
type ListParams struct {
	Page    int
	PerPage int
	OrderBy string
	Order   string
	Search  string
}

var allowedOrderBy = map[string]struct{}{
	"slug":        {},
	"click_count": {},
	"created_at":  {},
}

// Normalize coerces the params to safe values: 1-indexed pages, a sane page
// size, an allow-listed order column and an ASC/DESC direction. Unrecognized
// order columns fall back to created_at rather than erroring.
func (p ListParams) Normalize() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if _, ok := allowedOrderBy[p.OrderBy]; !ok {
		p.OrderBy = "created_at"
	}
	if strings.EqualFold(p.Order, "asc") {
		p.Order = "ASC"
	} else {
		p.Order = "DESC"
	}
	return p
}
