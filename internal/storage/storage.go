// Package storage persists and queries the append-only event log.
//
// Two implementations share one surface: ClickHouse for production and an
// in-memory store for tests and local runs. Both must agree on filter
// semantics (inclusive date bounds) and on ordering (count descending with
// an ascending name tie-break for grouped counts, timestamp descending with
// an event-id tie-break for listings) so query results are deterministic.
package storage

import (
	"time"

	"github.com/OYD-Protocol/shoptrack/internal/event"
)

// Filter narrows a listing. The zero value matches every event.
type Filter struct {
	Action   event.Action // empty means no action filter
	DateFrom *time.Time   // inclusive
	DateTo   *time.Time   // inclusive
}

func (f Filter) matches(ev *event.Event) bool {
	if f.Action != "" && ev.Action != f.Action {
		return false
	}
	if f.DateFrom != nil && ev.Timestamp.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && ev.Timestamp.After(*f.DateTo) {
		return false
	}
	return true
}

// ActionCount is one action's total inside a window.
type ActionCount struct {
	Action event.Action `json:"action"`
	Count  uint64       `json:"count"`
}

// ProductCount is one product's view total inside a window.
type ProductCount struct {
	ProductName string `json:"product_name"`
	Views       uint64 `json:"views"`
}

// SearchCount is one search term's total inside a window.
type SearchCount struct {
	SearchTerm string `json:"search_term"`
	Searches   uint64 `json:"searches"`
}

// DayCount is one UTC calendar day's event total.
type DayCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count uint64 `json:"count"`
}
