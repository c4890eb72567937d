package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/OYD-Protocol/shoptrack/internal/event"
)

// Memory is an in-memory event store with the same query semantics as the
// ClickHouse store. It backs tests and local runs without infrastructure.
type Memory struct {
	mu     sync.RWMutex
	events []event.Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) InsertEvents(ctx context.Context, events []event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *Memory) matching(f Filter) []event.Event {
	var out []event.Event
	for i := range m.events {
		if f.matches(&m.events[i]) {
			out = append(out, m.events[i])
		}
	}
	return out
}

func (m *Memory) ListEvents(ctx context.Context, f Filter, limit, offset int) ([]event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := m.matching(f)
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].EventID > matched[j].EventID
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *Memory) CountEvents(ctx context.Context, f Filter) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.matching(f))), nil
}

// countGroups groups matching events by key, skipping events with an empty
// key, and returns the groups sorted by count descending then key ascending.
func (m *Memory) countGroups(f Filter, key func(*event.Event) string) ([]string, map[string]uint64) {
	counts := make(map[string]uint64)
	for i := range m.events {
		if !f.matches(&m.events[i]) {
			continue
		}
		k := key(&m.events[i])
		if k == "" {
			continue
		}
		counts[k]++
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys, counts
}

func (m *Memory) ActionCounts(ctx context.Context, since time.Time) ([]ActionCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys, counts := m.countGroups(Filter{DateFrom: &since}, func(ev *event.Event) string {
		return string(ev.Action)
	})

	var out []ActionCount
	for _, k := range keys {
		out = append(out, ActionCount{Action: event.Action(k), Count: counts[k]})
	}
	return out, nil
}

func (m *Memory) TopProducts(ctx context.Context, since time.Time, limit int) ([]ProductCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f := Filter{Action: event.ActionProductView, DateFrom: &since}
	keys, counts := m.countGroups(f, func(ev *event.Event) string {
		return ev.ProductName
	})

	var out []ProductCount
	for _, k := range keys {
		if len(out) == limit {
			break
		}
		out = append(out, ProductCount{ProductName: k, Views: counts[k]})
	}
	return out, nil
}

func (m *Memory) TopSearches(ctx context.Context, since time.Time, limit int) ([]SearchCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f := Filter{Action: event.ActionProductSearch, DateFrom: &since}
	keys, counts := m.countGroups(f, func(ev *event.Event) string {
		return ev.SearchTerm
	})

	var out []SearchCount
	for _, k := range keys {
		if len(out) == limit {
			break
		}
		out = append(out, SearchCount{SearchTerm: k, Searches: counts[k]})
	}
	return out, nil
}

func (m *Memory) DailyActivity(ctx context.Context, since time.Time) ([]DayCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]uint64)
	for i := range m.events {
		if m.events[i].Timestamp.Before(since) {
			continue
		}
		counts[m.events[i].Timestamp.UTC().Format("2006-01-02")]++
	}

	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Strings(days)

	var out []DayCount
	for _, d := range days {
		out = append(out, DayCount{Date: d, Count: counts[d]})
	}
	return out, nil
}

func (m *Memory) UniqueCallerCount(ctx context.Context, since time.Time) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	callers := make(map[string]struct{})
	for i := range m.events {
		if m.events[i].Timestamp.Before(since) || m.events[i].CallerID == "" {
			continue
		}
		callers[m.events[i].CallerID] = struct{}{}
	}
	return uint64(len(callers)), nil
}
