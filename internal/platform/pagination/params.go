// Package pagination parses offset pagination and sorting query parameters.
package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is used when the client omits limit.
	DefaultLimit = 10
	// DefaultMaxLimit caps limit to prevent unbounded queries.
	DefaultMaxLimit = 100
)

// Params holds the 1-based page, the page size and the optional sort.
type Params struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// Offset returns the number of rows preceding the page.
func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Options control how Parse behaves for a given handler.
type Options struct {
	DefaultLimit int
	MaxLimit     int
	// AllowedSortFields, when set, restricts sort_by (case-insensitive).
	AllowedSortFields []string
}

var (
	ErrInvalidPage  = errors.New("pagination: invalid page")
	ErrInvalidLimit = errors.New("pagination: invalid limit")
	ErrInvalidSort  = errors.New("pagination: invalid sort")
)

// Parse reads page, limit, sort_by and sort_order. Limits above the maximum
// are clamped rather than rejected.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	maxLimit := opts.MaxLimit
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	limit := opts.DefaultLimit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	params := Params{Page: 1, Limit: limit}

	page, err := positiveInt(values.Get("page"), ErrInvalidPage)
	if err != nil {
		return Params{}, err
	}
	if page > 0 {
		params.Page = page
	}

	requested, err := positiveInt(values.Get("limit"), ErrInvalidLimit)
	if err != nil {
		return Params{}, err
	}
	if requested > 0 {
		params.Limit = min(requested, maxLimit)
	}

	params.SortBy = strings.TrimSpace(values.Get("sort_by"))
	if params.SortBy != "" && len(opts.AllowedSortFields) > 0 && !allowed(params.SortBy, opts.AllowedSortFields) {
		return Params{}, fmt.Errorf("%w: unsupported field %q", ErrInvalidSort, params.SortBy)
	}

	switch order := strings.ToLower(strings.TrimSpace(values.Get("sort_order"))); order {
	case "", "asc", "desc":
		params.SortOrder = order
	default:
		return Params{}, fmt.Errorf("%w: order must be asc or desc", ErrInvalidSort)
	}

	return params, nil
}

func positiveInt(raw string, sentinel error) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", sentinel, raw)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", sentinel)
	}
	return value, nil
}

func allowed(field string, fields []string) bool {
	for _, candidate := range fields {
		if strings.EqualFold(field, candidate) {
			return true
		}
	}
	return false
}
