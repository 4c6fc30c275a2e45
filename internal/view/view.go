// Package view derives the visible slice of a stock collection: filter, then
// stable sort, then paginate. Inputs are never modified.
package view

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// Errors
var (
	ErrUnknownSortKey = errors.New("unknown sort key")
	ErrBadDirection   = errors.New("bad sort direction")
)

// DefaultPageSize is used when a page size is not positive.
const DefaultPageSize = 25

// PageSizes are the page sizes offered to users.
var PageSizes = []int{5, 10, 15, 20, 25, 30, 50, 100}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection accepts "asc", "desc" or "" (ascending).
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(s)) {
	case "", Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadDirection, s)
}

// Page is one page of results.
type Page[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
	Pages    int `json:"pages"`
}

// Filter returns the items for which keep is true, in order.
func Filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// SortStable returns a sorted copy. Equal elements keep their relative order
// in both directions.
func SortStable[T any](items []T, compare func(a, b T) int, dir Direction) []T {
	out := slices.Clone(items)
	if dir == Desc {
		slices.SortStableFunc(out, func(a, b T) int { return compare(b, a) })
	} else {
		slices.SortStableFunc(out, compare)
	}
	return out
}

// Paginate returns page (1-indexed) of items. A page outside the available
// range yields an empty page; Total and Pages are always filled in.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(items)
	p := Page[T]{
		Items:    []T{},
		Page:     page,
		PageSize: size,
		Total:    total,
		Pages:    (total + size - 1) / size,
	}
	if page < 1 {
		return p
	}
	start := (page - 1) * size
	if start >= total {
		return p
	}
	end := min(start+size, total)
	p.Items = slices.Clone(items[start:end])
	return p
}

// Query describes a projection request.
type Query struct {
	Search   string    // case-insensitive substring of the display name
	Statuses []string  // keep only these statuses; empty keeps all
	SortKey  string    // empty uses the default key of the field set
	Dir      Direction // empty uses the default direction of the field set
	Page     int
	PageSize int
}

// Fields tells Project how to read one element type.
type Fields[T any] struct {
	Name       func(T) string
	Status     func(T) string
	Sorts      map[string]func(a, b T) int
	DefaultKey string
	DefaultDir Direction
}

// Project filters, sorts and paginates items according to q.
func Project[T any](items []T, q Query, f Fields[T]) (Page[T], error) {
	key := q.SortKey
	dir := q.Dir
	if key == "" {
		key = f.DefaultKey
		if dir == "" {
			dir = f.DefaultDir
		}
	}
	compare, ok := f.Sorts[key]
	if !ok {
		return Page[T]{}, fmt.Errorf("%w: %q", ErrUnknownSortKey, key)
	}

	filtered := items
	if q.Search != "" || len(q.Statuses) > 0 {
		fold := cases.Fold()
		needle := fold.String(q.Search)
		filtered = Filter(items, func(it T) bool {
			if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, f.Status(it)) {
				return false
			}
			return needle == "" || strings.Contains(fold.String(f.Name(it)), needle)
		})
	}

	return Paginate(SortStable(filtered, compare, dir), q.Page, q.PageSize), nil
}

// compareBy builds a comparator from a key extractor.
func compareBy[T any, K cmp.Ordered](key func(T) K) func(a, b T) int {
	return func(a, b T) int { return cmp.Compare(key(a), key(b)) }
}
