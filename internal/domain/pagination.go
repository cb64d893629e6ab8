package domain

// DefaultLimit is the default page size when none is specified.
const DefaultLimit = 50

// MaxLimit is the maximum allowed page size.
const MaxLimit = 500

// Page holds pagination parameters for list operations.
type Page struct {
	Limit  int
	Offset int
}

// EffectiveLimit returns the page size clamped to [1, MaxLimit].
func (p Page) EffectiveLimit() int {
	if p.Limit <= 0 {
		return DefaultLimit
	}
	if p.Limit > MaxLimit {
		return MaxLimit
	}
	return p.Limit
}

// EffectiveOffset returns the offset floored at 0.
func (p Page) EffectiveOffset() int {
	if p.Offset < 0 {
		return 0
	}
	return p.Offset
}

// Pagination describes the position of a returned page within the full result.
type Pagination struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"hasMore"`
}

// NewPagination computes the pagination envelope for a page and total count.
func NewPagination(page Page, total int64) Pagination {
	limit := page.EffectiveLimit()
	offset := page.EffectiveOffset()
	return Pagination{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+limit) < total,
	}
}

// RequestPage is the paginated envelope returned by list operations.
type RequestPage struct {
	Data       []QueryRequest `json:"data"`
	Pagination Pagination     `json:"pagination"`
}
