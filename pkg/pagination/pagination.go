package pagination

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Params holds page-based pagination parameters extracted from a request.
// Offset is derived from Page and Limit.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// New normalizes page and limit: page below 1 becomes 1, a non-positive
// limit becomes DefaultLimit and limits above MaxLimit are capped. page is
// capped so the offset cannot overflow.
func New(page, limit int) Params {
	if page < 1 {
		page = 1
	}
	limit = Clamp(limit, DefaultLimit, MaxLimit)
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}
	return Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// FromContext extracts pagination parameters from the page and limit query
// parameters. Unparseable values fall back to defaults.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	return New(page, limit)
}

// Clamp returns def for non-positive n and max for n above max.
func Clamp(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// QueryLimit reads an integer query parameter and clamps it to [1, max].
func QueryLimit(c echo.Context, name string, def, max int) int {
	n, _ := strconv.Atoi(c.QueryParam(name))
	return Clamp(n, def, max)
}

// Meta describes the page returned.
type Meta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"has_next"`
}

// Response wraps a paginated API response.
type Response struct {
	Status     string      `json:"status"`
	Data       interface{} `json:"data"`
	Pagination Meta        `json:"pagination"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	return &Response{
		Status: "success",
		Data:   data,
		Pagination: Meta{
			Page:    p.Page,
			Limit:   p.Limit,
			Total:   total,
			Pages:   p.Pages(total),
			HasNext: p.HasNext(total),
		},
	}
}

// Pages returns the number of pages needed for total items.
func (p Params) Pages(total int) int {
	if p.Limit <= 0 || total <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}
