package paging

import (
	"fmt"
	"slices"
	"strings"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Params holds the unified pagination parameters
type Params struct {
	Page  int    `json:"page" form:"page"`
	Limit int    `json:"limit" form:"limit"`
	Sort  string `json:"sort" form:"sort"`
	Order string `json:"order" form:"order"`
}

// Offset returns the row offset of the current page
func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Descending reports whether results are ordered descending
func (p Params) Descending() bool {
	return p.Order == OrderDesc
}

// Result holds the pagination result
type Result[T any] struct {
	Items       []T  `json:"items"`
	Total       int  `json:"total"`
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	HasNextPage bool `json:"has_next"`
}

// NormalizeParams ensures that page and limit are within an acceptable range
// and that sort names one of the allowed columns. The first allowed column is
// the default sort.
func NormalizeParams(params Params, sorts ...string) Params {
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.Limit <= 0 {
		params.Limit = DefaultLimit
	}
	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}

	params.Order = strings.ToLower(params.Order)
	if params.Order != OrderAsc && params.Order != OrderDesc {
		params.Order = OrderDesc
	}

	if len(sorts) > 0 && !slices.Contains(sorts, params.Sort) {
		params.Sort = sorts[0]
	}
	return params
}

// PagingFunc loads one page of items and the total number of matching rows
type PagingFunc[T any] func(offset, limit int) (items []T, total int, err error)

// Paginate applies pagination using the provided PagingFunc
func Paginate[T any](params Params, fn PagingFunc[T]) (*Result[T], error) {
	params = NormalizeParams(params)
	offset := params.Offset()

	items, total, err := fn(offset, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("pagination error: %w", err)
	}

	if len(items) > params.Limit {
		items = items[:params.Limit]
	}
	if items == nil {
		items = make([]T, 0)
	}

	return &Result[T]{
		Items:       items,
		Total:       total,
		Page:        params.Page,
		Limit:       params.Limit,
		HasNextPage: offset+len(items) < total,
	}, nil
}

// Window returns one page of an already loaded slice together with its length.
func Window[T any](items []T, offset, limit int) ([]T, int, error) {
	total := len(items)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return items[offset:end], total, nil
}
