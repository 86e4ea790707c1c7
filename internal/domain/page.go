package domain

// Page size bounds of the wallet transaction listing.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PaginationParams selects one page of a user's ledger entries. Page is
// 1-indexed.
type PaginationParams struct {
	Page  int
	Limit int
}

// NewPaginationParams builds PaginationParams from the optional page and
// limit query values of GET /wallets/{currency}/transactions. Missing or
// non-positive values fall back to page 1 and DefaultPageLimit; the limit
// never exceeds MaxPageLimit.
func NewPaginationParams(page, limit *int) PaginationParams {
	p := PaginationParams{Page: 1, Limit: DefaultPageLimit}
	if page != nil && *page > 0 {
		p.Page = *page
	}
	if limit != nil && *limit > 0 {
		p.Limit = min(*limit, MaxPageLimit)
	}
	return p
}

// Offset is the number of ledger entries that precede the page.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.Limit
}
