// Package paginate bounds ordered queries to a page window.
//
// Two modes are supported. Standard mode runs a COUNT and reports the number
// of pages. Countless mode fetches limit+1 rows and infers whether more rows
// exist, so filtered searches over large tables never pay for COUNT(*). In
// countless mode the exact total is still known whenever the last page has
// been reached, which lets callers detect a single-record result on page 1
// without an extra query.
package paginate

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Request is a 1-based page window over an ordered collection.
type Request struct {
	Page      int
	Limit     int
	Countless bool
}

// Normalize clamps Page to at least 1 and Limit to (0, maxLimit], replacing
// a missing or invalid limit with defaultLimit.
func (r Request) Normalize(defaultLimit, maxLimit int) Request {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Limit <= 0 {
		r.Limit = defaultLimit
	}
	if r.Limit > maxLimit {
		r.Limit = maxLimit
	}
	return r
}

// Offset is the number of records preceding the page.
func (r Request) Offset() int {
	return (r.Page - 1) * r.Limit
}

// ResultSet is one page of records plus pagination metadata.
// Pages is nil in countless mode; Total is nil while it is unknown.
type ResultSet[T any] struct {
	Records []T
	Page    int
	Limit   int
	Pages   *int
	HasMore bool
	Total   *int
}

// ExactCount returns the total number of matching records when it is known.
func (rs ResultSet[T]) ExactCount() (int, bool) {
	if rs.Total == nil {
		return 0, false
	}
	return *rs.Total, true
}

// Meta is the JSON pagination block returned to clients.
type Meta struct {
	Page    int   `json:"page"`
	Pages   *int  `json:"pages"`
	HasMore *bool `json:"has_more"`
}

// Meta returns the client-facing metadata for the page.
func (rs ResultSet[T]) Meta() Meta {
	hasMore := rs.HasMore
	return Meta{Page: rs.Page, Pages: rs.Pages, HasMore: &hasMore}
}

// Empty returns a page with no records and a known total of zero.
func Empty[T any](req Request) ResultSet[T] {
	total := 0
	rs := ResultSet[T]{Records: []T{}, Page: req.Page, Limit: req.Limit, Total: &total}
	if !req.Countless {
		pages := 1
		rs.Pages = &pages
	}
	return rs
}

// Query executes q for the requested window. q must already carry its
// filters and ordering; req must be normalized.
func Query[T any](ctx context.Context, q *bun.SelectQuery, req Request) (ResultSet[T], error) {
	if req.Limit <= 0 || req.Page < 1 {
		return ResultSet[T]{}, fmt.Errorf("paginate: request not normalized: page=%d limit=%d", req.Page, req.Limit)
	}
	if req.Countless {
		return countless[T](ctx, q, req)
	}
	return counted[T](ctx, q, req)
}

func counted[T any](ctx context.Context, q *bun.SelectQuery, req Request) (ResultSet[T], error) {
	total, err := q.Count(ctx)
	if err != nil {
		return ResultSet[T]{}, fmt.Errorf("paginate: count: %w", err)
	}

	records := make([]T, 0, req.Limit)
	if req.Offset() < total {
		if err := q.Limit(req.Limit).Offset(req.Offset()).Scan(ctx, &records); err != nil {
			return ResultSet[T]{}, fmt.Errorf("paginate: scan: %w", err)
		}
	}

	return countedResult(records, req, total), nil
}

func countless[T any](ctx context.Context, q *bun.SelectQuery, req Request) (ResultSet[T], error) {
	records := make([]T, 0, req.Limit+1)
	if err := q.Limit(req.Limit + 1).Offset(req.Offset()).Scan(ctx, &records); err != nil {
		return ResultSet[T]{}, fmt.Errorf("paginate: scan: %w", err)
	}
	return countlessResult(records, req), nil
}

// Slice paginates an in-memory, already ordered collection in standard mode.
func Slice[T any](items []T, req Request) ResultSet[T] {
	start := min(req.Offset(), len(items))
	end := min(start+req.Limit, len(items))

	page := make([]T, end-start)
	copy(page, items[start:end])

	return countedResult(page, req, len(items))
}

func countedResult[T any](records []T, req Request, total int) ResultSet[T] {
	pages := (total + req.Limit - 1) / req.Limit
	if pages < 1 {
		pages = 1
	}
	return ResultSet[T]{
		Records: records,
		Page:    req.Page,
		Limit:   req.Limit,
		Pages:   &pages,
		HasMore: req.Page < pages,
		Total:   &total,
	}
}

func countlessResult[T any](records []T, req Request) ResultSet[T] {
	rs := ResultSet[T]{Page: req.Page, Limit: req.Limit}
	if len(records) > req.Limit {
		rs.Records = records[:req.Limit]
		rs.HasMore = true
		return rs
	}

	rs.Records = records
	// The window reached the end. When it is non-empty, or it is the first
	// page, everything before it is a full prior page, so the total is exact.
	if len(records) > 0 || req.Page == 1 {
		total := req.Offset() + len(records)
		rs.Total = &total
	}
	return rs
}
