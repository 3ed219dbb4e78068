package gatekeeper

const (
	// DefaultPage is the first page
	DefaultPage = 1
	// DefaultPageSize bounds unpaginated requests
	DefaultPageSize = 20
	// MaxPageSize caps a caller-provided limit
	MaxPageSize = 100
)

// PageRequest carries normalized pagination input.
type PageRequest struct {
	Page  int
	Limit int
}

// Pagination describes the slice a listing returned.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NormalizePageRequest clamps page and limit into their valid ranges.
func NormalizePageRequest(in PageRequest) PageRequest {
	page := in.Page
	if page < 1 {
		page = DefaultPage
	}
	limit := in.Limit
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return PageRequest{Page: page, Limit: limit}
}

// NewPagination computes the page envelope for a total row count.
func NewPagination(req PageRequest, total int64) Pagination {
	return Pagination{
		Page:       req.Page,
		Limit:      req.Limit,
		Total:      total,
		TotalPages: calcTotalPages(total, req.Limit),
	}
}

// Offset returns the row offset for the request.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

func calcTotalPages(total int64, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	ps := int64(limit)
	pages := total / ps
	if total%ps != 0 {
		pages++
	}
	return int(pages)
}
