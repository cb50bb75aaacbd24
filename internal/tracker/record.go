package tracker

import (
	"context"
	"time"
)

// Storage keys for the persisted record.
const (
	KeyCumulativeSteps = "cumulative_steps"
	KeyLastSensorCount = "last_sensor_count"
	KeyStepsDate       = "steps_date"
)

// Record is the persisted daily step state.
type Record struct {
	Day             Day   `json:"day"`
	CumulativeSteps int64 `json:"cumulative_steps"`
	LastSensorValue int64 `json:"last_sensor_value"`
}

// Reading is one raw sensor callback.
type Reading struct {
	// OdometerValue is the cumulative step count since the source's own
	// reference epoch. It may drop back toward zero after a reboot.
	OdometerValue int64 `json:"odometer"`

	// ObservedAt is when the source produced the reading (informational).
	ObservedAt time.Time `json:"observed_at,omitempty"`

	// Source names the producer (informational).
	Source string `json:"source,omitempty"`
}

// KV is the durable key-value store the tracker persists through.
//
// Get methods report (value, found, err). A nil value in SetMany removes
// the key. SetMany must apply all values or none.
type KV interface {
	GetNumber(ctx context.Context, key string) (int64, bool, error)
	GetString(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
	SetMany(ctx context.Context, values map[string]any) error
}
