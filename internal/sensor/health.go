package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/roach88/stepd/internal/tracker"
)

// HealthQuery asks a health platform for the steps recorded since from.
type HealthQuery interface {
	StepsSince(ctx context.Context, from time.Time) (int64, error)
}

// HealthQueryFunc adapts a function to HealthQuery.
type HealthQueryFunc func(ctx context.Context, from time.Time) (int64, error)

// StepsSince implements HealthQuery.
func (f HealthQueryFunc) StepsSince(ctx context.Context, from time.Time) (int64, error) {
	return f(ctx, from)
}

// FileHealthQuery reads a health platform export of the form {"steps": n}.
// The export is assumed to already be relative to the requested epoch.
type FileHealthQuery struct {
	Path string
}

type healthExport struct {
	Steps int64 `json:"steps"`
}

// StepsSince implements HealthQuery.
func (q FileHealthQuery) StepsSince(_ context.Context, _ time.Time) (int64, error) {
	data, err := os.ReadFile(q.Path)
	if err != nil {
		return 0, fmt.Errorf("read health export: %w", err)
	}

	var export healthExport
	if err := json.Unmarshal(data, &export); err != nil {
		return 0, fmt.Errorf("decode health export: %w", err)
	}
	if export.Steps < 0 {
		return 0, fmt.Errorf("decode health export: %w", ErrNegativeValue)
	}
	return export.Steps, nil
}

// HealthSource polls a HealthQuery and emits each answer as an odometer
// reading. The query's total since the epoch is monotonic within one
// platform session, which is all the reconciliation core needs.
//
// A failed query emits nothing for that poll.
type HealthSource struct {
	query    HealthQuery
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealthSource creates a stopped polling source.
// A non-positive interval uses DefaultPollInterval.
func NewHealthSource(q HealthQuery, interval time.Duration) *HealthSource {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &HealthSource{query: q, interval: interval}
}

// Name implements Source.
func (s *HealthSource) Name() string {
	return KindHealth
}

// Start implements Source. The first poll happens immediately.
func (s *HealthSource) Start(ctx context.Context, epoch time.Time, fn Handler) error {
	_ = s.Stop()

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.pollLoop(pollCtx, epoch, fn, done)
	return nil
}

// Stop implements Source.
func (s *HealthSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	return nil
}

func (s *HealthSource) pollLoop(ctx context.Context, epoch time.Time, fn Handler, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.poll(ctx, epoch, fn)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *HealthSource) poll(ctx context.Context, epoch time.Time, fn Handler) {
	steps, err := s.query.StepsSince(ctx, epoch)
	if err != nil {
		slog.Warn("health query failed", "error", err)
		return
	}
	if ctx.Err() != nil {
		return
	}
	fn(tracker.Reading{
		OdometerValue: steps,
		ObservedAt:    time.Now(),
		Source:        KindHealth,
	})
}
