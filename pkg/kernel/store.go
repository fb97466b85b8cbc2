package kernel

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ============================================================================
// Pagination
// ============================================================================

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page represents pagination metadata
type Page struct {
	Number int `json:"page"`
	Size   int `json:"page_size"`
	Total  int `json:"total"`
	Pages  int `json:"pages"`
}

// Paginated is a page of items with its metadata
type Paginated[T any] struct {
	Items []T  `json:"items"`
	Page  Page `json:"pagination"`
}

// NewPaginated computes the page count for total records.
func NewPaginated[T any](items []T, opts PaginationOptions, total int) Paginated[T] {
	opts = opts.Normalize()
	if items == nil {
		items = []T{}
	}
	return Paginated[T]{
		Items: items,
		Page: Page{
			Number: opts.Page,
			Size:   opts.PageSize,
			Total:  total,
			Pages:  (total + opts.PageSize - 1) / opts.PageSize,
		},
	}
}

// MapPaginated converts the items of a page.
func MapPaginated[T, U any](p Paginated[T], f func(T) U) Paginated[U] {
	out := make([]U, len(p.Items))
	for i, it := range p.Items {
		out[i] = f(it)
	}
	return Paginated[U]{Items: out, Page: p.Page}
}

// PaginationOptions holds options for pagination queries
type PaginationOptions struct {
	Page     int `query:"page"`
	PageSize int `query:"page_size"`
}

// Normalize clamps the options to 1-based pages of at most MaxPageSize.
func (o PaginationOptions) Normalize() PaginationOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	switch {
	case o.PageSize < 1:
		o.PageSize = DefaultPageSize
	case o.PageSize > MaxPageSize:
		o.PageSize = MaxPageSize
	}
	return o
}

// Offset is the number of records to skip.
func (o PaginationOptions) Offset() int {
	o = o.Normalize()
	return (o.Page - 1) * o.PageSize
}

// ============================================================================
// JSON columns
// ============================================================================

// JSONColumn stores V as a JSON document in a SQL column.
type JSONColumn[T any] struct {
	V T
}

func (j JSONColumn[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONColumn[T]) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		var zero T
		j.V = zero
		return nil
	case []byte:
		return json.Unmarshal(v, &j.V)
	case string:
		return json.Unmarshal([]byte(v), &j.V)
	default:
		return fmt.Errorf("kernel: cannot scan %T into JSONColumn", src)
	}
}
