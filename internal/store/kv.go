package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ErrMalformedValue is returned when a stored value cannot be read as the
// requested type.
var ErrMalformedValue = errors.New("malformed stored value")

// GetNumber returns the integer stored under key.
// Returns (0, false, nil) if the key is absent.
//
// A value stored as a string is parsed; a string that is not an integer
// yields ErrMalformedValue.
func (s *Store) GetNumber(ctx context.Context, key string) (int64, bool, error) {
	num, str, found, err := s.get(ctx, key)
	if err != nil || !found {
		return 0, false, err
	}

	if num.Valid {
		return num.Int64, true, nil
	}
	if str.Valid {
		n, err := strconv.ParseInt(str.String, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("get number %q: %w", key, ErrMalformedValue)
		}
		return n, true, nil
	}
	return 0, false, nil
}

// GetString returns the string stored under key.
// Returns ("", false, nil) if the key is absent. Numbers are formatted.
func (s *Store) GetString(ctx context.Context, key string) (string, bool, error) {
	num, str, found, err := s.get(ctx, key)
	if err != nil || !found {
		return "", false, err
	}

	if str.Valid {
		return str.String, true, nil
	}
	if num.Valid {
		return strconv.FormatInt(num.Int64, 10), true, nil
	}
	return "", false, nil
}

func (s *Store) get(ctx context.Context, key string) (sql.NullInt64, sql.NullString, bool, error) {
	var num sql.NullInt64
	var str sql.NullString

	err := s.db.QueryRowContext(ctx, `SELECT num, str FROM kv WHERE key = ?`, key).Scan(&num, &str)
	if errors.Is(err, sql.ErrNoRows) {
		return num, str, false, nil
	}
	if err != nil {
		return num, str, false, fmt.Errorf("get %q: %w", key, err)
	}
	return num, str, true, nil
}

// Set writes a single value. See SetMany for accepted types.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	return s.SetMany(ctx, map[string]any{key: value})
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	return s.SetMany(ctx, map[string]any{key: nil})
}

// SetMany writes all values in one transaction.
//
// Accepted value types are int, int64, string and nil (nil removes the key).
// Keys are applied in sorted order. Either every value is written or none.
func (s *Store) SetMany(ctx context.Context, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set many: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	updatedAt := s.now().UnixMilli()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := writeValue(ctx, tx, key, values[key], updatedAt); err != nil {
			return fmt.Errorf("set many: %w", err)
		}
	}

	if err := s.mirrorHistory(ctx, tx, values, updatedAt); err != nil {
		return fmt.Errorf("set many: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set many: commit: %w", err)
	}
	return nil
}

func writeValue(ctx context.Context, tx *sql.Tx, key string, value any, updatedAt int64) error {
	var num sql.NullInt64
	var str sql.NullString

	switch v := value.(type) {
	case nil:
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return fmt.Errorf("remove %q: %w", key, err)
		}
		return nil
	case int:
		num = sql.NullInt64{Int64: int64(v), Valid: true}
	case int64:
		num = sql.NullInt64{Int64: v, Valid: true}
	case string:
		str = sql.NullString{String: v, Valid: true}
	default:
		return fmt.Errorf("set %q: unsupported value type %T", key, value)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO kv (key, num, str, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			num = excluded.num,
			str = excluded.str,
			updated_at = excluded.updated_at
	`, key, num, str, updatedAt)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// mirrorHistory upserts daily_totals when the batch carries both history keys.
func (s *Store) mirrorHistory(ctx context.Context, tx *sql.Tx, values map[string]any, updatedAt int64) error {
	if s.historyDayKey == "" || s.historyStepsKey == "" {
		return nil
	}

	day, ok := values[s.historyDayKey].(string)
	if !ok || day == "" {
		return nil
	}

	var steps int64
	switch v := values[s.historyStepsKey].(type) {
	case int:
		steps = int64(v)
	case int64:
		steps = v
	default:
		return nil
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO daily_totals (day, steps, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			steps = excluded.steps,
			updated_at = excluded.updated_at
	`, day, steps, updatedAt)
	if err != nil {
		return fmt.Errorf("mirror daily total %s: %w", day, err)
	}
	return nil
}
