package storage

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/OYD-Protocol/shoptrack/internal/config"
	"github.com/OYD-Protocol/shoptrack/internal/event"
)

// ClickHouse stores events in the events table (see schema/clickhouse.sql).
type ClickHouse struct {
	conn driver.Conn
}

func NewClickHouse(cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	return &ClickHouse{conn: conn}, nil
}

func (c *ClickHouse) InsertEvents(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO events (
			event_id, action, timestamp,
			caller_id, caller_email, caller_name,
			product_id, product_name, search_term, quantity, order_value,
			metadata, session_id, user_agent, source_address,
			browser, browser_version, os, device_type, country, city
		)
	`)
	if err != nil {
		return err
	}

	for _, e := range events {
		var metadata string
		if len(e.Metadata) > 0 {
			b, _ := json.Marshal(e.Metadata)
			metadata = string(b)
		}

		err := batch.Append(
			e.EventID, string(e.Action), e.Timestamp,
			e.CallerID, e.CallerEmail, e.CallerName,
			e.ProductID, e.ProductName, e.SearchTerm, e.Quantity, e.OrderValue,
			metadata, e.SessionID, e.UserAgent, e.SourceAddress,
			e.Browser, e.BrowserVersion, e.OS, e.DeviceType, e.Country, e.City,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func filterClause(f Filter) (string, []any) {
	conds := make([]string, 0, 3)
	args := make([]any, 0, 3)

	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, string(f.Action))
	}
	if f.DateFrom != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, *f.DateFrom)
	}
	if f.DateTo != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, *f.DateTo)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (c *ClickHouse) ListEvents(ctx context.Context, f Filter, limit, offset int) ([]event.Event, error) {
	where, args := filterClause(f)
	args = append(args, limit, offset)

	rows, err := c.conn.Query(ctx, `
		SELECT
			event_id, action, timestamp,
			caller_id, caller_email, caller_name,
			product_id, product_name, search_term, quantity, order_value,
			metadata, session_id, user_agent, source_address,
			browser, browser_version, os, device_type, country, city
		FROM events`+where+`
		ORDER BY timestamp DESC, event_id DESC
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var (
			e        event.Event
			action   string
			metadata string
		)
		err := rows.Scan(
			&e.EventID, &action, &e.Timestamp,
			&e.CallerID, &e.CallerEmail, &e.CallerName,
			&e.ProductID, &e.ProductName, &e.SearchTerm, &e.Quantity, &e.OrderValue,
			&metadata, &e.SessionID, &e.UserAgent, &e.SourceAddress,
			&e.Browser, &e.BrowserVersion, &e.OS, &e.DeviceType, &e.Country, &e.City,
		)
		if err != nil {
			return nil, err
		}
		e.Action = event.Action(action)
		if metadata != "" {
			_ = json.Unmarshal([]byte(metadata), &e.Metadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (c *ClickHouse) CountEvents(ctx context.Context, f Filter) (uint64, error) {
	where, args := filterClause(f)

	var count uint64
	err := c.conn.QueryRow(ctx, "SELECT count() FROM events"+where, args...).Scan(&count)
	return count, err
}

func (c *ClickHouse) ActionCounts(ctx context.Context, since time.Time) ([]ActionCount, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT action, count() AS cnt
		FROM events
		WHERE timestamp >= ?
		GROUP BY action
		ORDER BY cnt DESC, action ASC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActionCount
	for rows.Next() {
		var (
			action string
			count  uint64
		)
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		out = append(out, ActionCount{Action: event.Action(action), Count: count})
	}
	return out, rows.Err()
}

func (c *ClickHouse) TopProducts(ctx context.Context, since time.Time, limit int) ([]ProductCount, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT product_name, count() AS views
		FROM events
		WHERE action = ? AND timestamp >= ? AND product_name != ''
		GROUP BY product_name
		ORDER BY views DESC, product_name ASC
		LIMIT ?
	`, string(event.ActionProductView), since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductCount
	for rows.Next() {
		var pc ProductCount
		if err := rows.Scan(&pc.ProductName, &pc.Views); err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func (c *ClickHouse) TopSearches(ctx context.Context, since time.Time, limit int) ([]SearchCount, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT search_term, count() AS searches
		FROM events
		WHERE action = ? AND timestamp >= ? AND search_term != ''
		GROUP BY search_term
		ORDER BY searches DESC, search_term ASC
		LIMIT ?
	`, string(event.ActionProductSearch), since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SearchCount
	for rows.Next() {
		var sc SearchCount
		if err := rows.Scan(&sc.SearchTerm, &sc.Searches); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (c *ClickHouse) DailyActivity(ctx context.Context, since time.Time) ([]DayCount, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT toDate(timestamp) AS day, count() AS cnt
		FROM events
		WHERE timestamp >= ?
		GROUP BY day
		ORDER BY day ASC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var (
			day   time.Time
			count uint64
		)
		if err := rows.Scan(&day, &count); err != nil {
			return nil, err
		}
		out = append(out, DayCount{Date: day.UTC().Format("2006-01-02"), Count: count})
	}
	return out, rows.Err()
}

func (c *ClickHouse) UniqueCallerCount(ctx context.Context, since time.Time) (uint64, error) {
	var count uint64
	err := c.conn.QueryRow(ctx, `
		SELECT uniqExact(caller_id)
		FROM events
		WHERE timestamp >= ? AND caller_id != ''
	`, since).Scan(&count)
	return count, err
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
