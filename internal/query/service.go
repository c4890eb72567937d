// Package query computes paginated listings and windowed rollups over the
// event log. It owns parameter validation and pagination math; grouping,
// sorting and limiting run inside the store.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OYD-Protocol/shoptrack/internal/event"
	"github.com/OYD-Protocol/shoptrack/internal/storage"
)

const (
	// DefaultPageSize is the listing page size when the caller sends none.
	DefaultPageSize = 50
	// DefaultWindowDays is the default summary window.
	DefaultWindowDays = 7

	topLimit = 10
)

var (
	ErrInvalidPage     = errors.New("page must be a positive integer")
	ErrInvalidPageSize = errors.New("page size must be a positive integer")
	ErrInvalidWindow   = errors.New("window days must be a positive integer")
)

// EventStore is the read surface the service needs from storage.
type EventStore interface {
	ListEvents(ctx context.Context, f storage.Filter, limit, offset int) ([]event.Event, error)
	CountEvents(ctx context.Context, f storage.Filter) (uint64, error)
	ActionCounts(ctx context.Context, since time.Time) ([]storage.ActionCount, error)
	TopProducts(ctx context.Context, since time.Time, limit int) ([]storage.ProductCount, error)
	TopSearches(ctx context.Context, since time.Time, limit int) ([]storage.SearchCount, error)
	DailyActivity(ctx context.Context, since time.Time) ([]storage.DayCount, error)
	UniqueCallerCount(ctx context.Context, since time.Time) (uint64, error)
}

type Service struct {
	store EventStore
	now   func() time.Time
}

func NewService(store EventStore) *Service {
	return &Service{store: store, now: time.Now}
}

// NewServiceAt pins the clock; tests use it to anchor summary windows.
func NewServiceAt(store EventStore, now func() time.Time) *Service {
	return &Service{store: store, now: now}
}

type ListParams struct {
	Filter   storage.Filter
	Page     int
	PageSize int
}

// Pagination describes the page a listing came from.
type Pagination struct {
	CurrentPage int    `json:"current_page"`
	TotalPages  int    `json:"total_pages"`
	TotalCount  uint64 `json:"total_count"`
	HasNextPage bool   `json:"has_next_page"`
	HasPrevPage bool   `json:"has_prev_page"`
}

type ListResult struct {
	Events     []event.Event `json:"events"`
	Pagination Pagination    `json:"pagination"`
}

// List returns one page of events, newest first. Pages past the end are
// empty, not errors.
func (s *Service) List(ctx context.Context, p ListParams) (*ListResult, error) {
	if p.Page < 1 {
		return nil, ErrInvalidPage
	}
	if p.PageSize < 1 {
		return nil, ErrInvalidPageSize
	}

	total, err := s.store.CountEvents(ctx, p.Filter)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	offset := (p.Page - 1) * p.PageSize
	events, err := s.store.ListEvents(ctx, p.Filter, p.PageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []event.Event{}
	}

	totalPages := int((total + uint64(p.PageSize) - 1) / uint64(p.PageSize))
	return &ListResult{
		Events: events,
		Pagination: Pagination{
			CurrentPage: p.Page,
			TotalPages:  totalPages,
			TotalCount:  total,
			HasNextPage: p.Page < totalPages,
			HasPrevPage: p.Page > 1,
		},
	}, nil
}

// Summary is the windowed rollup served to the reporting UI.
type Summary struct {
	ActionStats       []storage.ActionCount  `json:"action_stats"`
	TopProducts       []storage.ProductCount `json:"top_products"`
	TopSearches       []storage.SearchCount  `json:"top_searches"`
	DailyActivity     []storage.DayCount     `json:"daily_activity"`
	UniqueCallerCount uint64                 `json:"unique_caller_count"`
	TotalActions      uint64                 `json:"total_actions"`
}

// Summarize aggregates events from the trailing window [now - days, now].
// The window re-anchors to now on every call, so two calls with the same
// days argument need not agree; callers wanting reproducible results must
// pin their own window edges.
func (s *Service) Summarize(ctx context.Context, days int) (*Summary, error) {
	if days < 1 {
		return nil, ErrInvalidWindow
	}

	since := s.now().UTC().AddDate(0, 0, -days)
	sum := &Summary{}

	var err error
	if sum.ActionStats, err = s.store.ActionCounts(ctx, since); err != nil {
		return nil, fmt.Errorf("action counts: %w", err)
	}
	if sum.TopProducts, err = s.store.TopProducts(ctx, since, topLimit); err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	if sum.TopSearches, err = s.store.TopSearches(ctx, since, topLimit); err != nil {
		return nil, fmt.Errorf("top searches: %w", err)
	}
	if sum.DailyActivity, err = s.store.DailyActivity(ctx, since); err != nil {
		return nil, fmt.Errorf("daily activity: %w", err)
	}
	if sum.UniqueCallerCount, err = s.store.UniqueCallerCount(ctx, since); err != nil {
		return nil, fmt.Errorf("unique callers: %w", err)
	}

	for _, ac := range sum.ActionStats {
		sum.TotalActions += ac.Count
	}
	return sum, nil
}
