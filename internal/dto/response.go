package dto

type Pagination struct {
	TotalCount  uint64 `json:"total_count"`
	Limit       uint64 `json:"limit"`
	Offset      uint64 `json:"offset"`
	CurrentPage uint64 `json:"current_page,omitempty"`
	TotalPages  uint64 `json:"total_pages,omitempty"`
}

// NewPagination считает номер страницы и число страниц. limit 0 - без разбиения.
func NewPagination(total, limit, offset uint64) Pagination {
	p := Pagination{TotalCount: total, Limit: limit, Offset: offset, CurrentPage: 1}
	if limit > 0 {
		p.CurrentPage = offset/limit + 1
		p.TotalPages = (total + limit - 1) / limit
	}
	return p
}

type ListResponse[T any] struct {
	List       []T        `json:"list"`
	Pagination Pagination `json:"pagination"`
}
