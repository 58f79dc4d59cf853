// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package paging holds the page envelope returned by every read view.
package paging

import "strings"

// Direction is a sort direction
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection parses "asc"/"desc", defaulting to Asc
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), string(Desc)) {
		return Desc
	}
	return Asc
}

// Options selects a window of a collection.
// Limit <= 0 means everything from Offset on.
type Options struct {
	Limit          int
	Offset         int
	OrderBy        string
	OrderDirection Direction
}

// Page is one window of results
type Page[T any] struct {
	Data       []T  `json:"data"`
	Total      int  `json:"total"`
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset,omitempty"`
}

// Paginate slices items to [offset, offset+limit).
func Paginate[T any](items []T, limit, offset int) Page[T] {
	total := len(items)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}

	// compare against the remainder so offset+limit is never computed
	// when it could overflow
	more := limit > 0 && limit < total-offset
	end := total
	if more {
		end = offset + limit
	}

	data := make([]T, end-offset)
	copy(data, items[offset:end])

	page := Page[T]{
		Data:    data,
		Total:   total,
		HasMore: more,
	}
	if more {
		page.NextOffset = &end
	}
	return page
}

// Map converts the items of a page, keeping its envelope
func Map[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := Page[U]{
		Data:       make([]U, len(p.Data)),
		Total:      p.Total,
		HasMore:    p.HasMore,
		NextOffset: p.NextOffset,
	}
	for i, v := range p.Data {
		out.Data[i] = fn(v)
	}
	return out
}
