package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Memory is an in-process KV with the same semantics as Store.
// It is not durable; use it in tests and for dry runs.
type Memory struct {
	mu     sync.Mutex
	values map[string]any
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]any)}
}

// GetNumber returns the integer stored under key.
func (m *Memory) GetNumber(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch v := m.values[key].(type) {
	case nil:
		return 0, false, nil
	case int64:
		return v, true, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("get number %q: %w", key, ErrMalformedValue)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("get number %q: %w", key, ErrMalformedValue)
	}
}

// GetString returns the string stored under key.
func (m *Memory) GetString(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch v := m.values[key].(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	case int64:
		return strconv.FormatInt(v, 10), true, nil
	default:
		return "", false, fmt.Errorf("get string %q: %w", key, ErrMalformedValue)
	}
}

// Set writes a single value.
func (m *Memory) Set(ctx context.Context, key string, value any) error {
	return m.SetMany(ctx, map[string]any{key: value})
}

// Remove deletes key.
func (m *Memory) Remove(ctx context.Context, key string) error {
	return m.SetMany(ctx, map[string]any{key: nil})
}

// SetMany validates every value before applying any of them.
func (m *Memory) SetMany(_ context.Context, values map[string]any) error {
	normalized := make(map[string]any, len(values))
	for k, v := range values {
		switch tv := v.(type) {
		case nil, string, int64:
			normalized[k] = tv
		case int:
			normalized[k] = int64(tv)
		default:
			return fmt.Errorf("set %q: unsupported value type %T", k, v)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range normalized {
		if v == nil {
			delete(m.values, k)
			continue
		}
		m.values[k] = v
	}
	return nil
}

// Snapshot returns a copy of the stored values.
func (m *Memory) Snapshot() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]any, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
