package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/stepd/internal/tracker"
)

// Source kinds accepted by New.
const (
	KindOdometer = "odometer"
	KindHealth   = "health"
	KindManual   = "manual"
)

// DefaultPollInterval is how often HealthSource queries when unset.
const DefaultPollInterval = 5 * time.Second

// ErrUnknownKind is returned by New for an unsupported source kind.
var ErrUnknownKind = errors.New("unknown sensor kind")

// Handler receives readings. It may be called from a source goroutine.
type Handler func(tracker.Reading)

// Source produces odometer readings.
type Source interface {
	// Name identifies the source in logs and readings.
	Name() string

	// Start begins emitting readings to fn. The epoch is advisory; sources
	// that compute totals relative to a start point use it.
	Start(ctx context.Context, epoch time.Time, fn Handler) error

	// Stop halts emission. Safe to call when not started.
	Stop() error
}

// Config selects and configures a Source.
type Config struct {
	Kind         string
	Path         string
	PollInterval time.Duration
}

// New builds the Source described by cfg.
func New(cfg Config) (Source, error) {
	switch cfg.Kind {
	case KindOdometer:
		if cfg.Path == "" {
			return nil, fmt.Errorf("odometer source: path is required")
		}
		return NewOdometerSource(cfg.Path), nil
	case KindHealth:
		if cfg.Path == "" {
			return nil, fmt.Errorf("health source: path is required")
		}
		return NewHealthSource(FileHealthQuery{Path: cfg.Path}, cfg.PollInterval), nil
	case KindManual, "":
		return NewManualSource(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}
