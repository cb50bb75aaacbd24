package store

import (
	"context"
	"fmt"
	"time"
)

// DailyTotal is one day's final (or running) step total.
type DailyTotal struct {
	Day       string    `json:"day"`
	Steps     int64     `json:"steps"`
	UpdatedAt time.Time `json:"updated_at"`
}

// History returns daily totals, most recent day first.
// A limit <= 0 returns every day.
//
// Returns an empty slice (not nil) if no days are recorded.
func (s *Store) History(ctx context.Context, limit int) ([]DailyTotal, error) {
	query := `SELECT day, steps, updated_at FROM daily_totals ORDER BY day DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query daily totals: %w", err)
	}
	defer rows.Close()

	totals := []DailyTotal{}
	for rows.Next() {
		var dt DailyTotal
		var updatedAt int64
		if err := rows.Scan(&dt.Day, &dt.Steps, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan daily total: %w", err)
		}
		dt.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		totals = append(totals, dt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily totals: %w", err)
	}

	return totals, nil
}
