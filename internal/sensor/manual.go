package sensor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roach88/stepd/internal/tracker"
)

// ErrNegativeValue is returned by Push for negative odometer values.
var ErrNegativeValue = errors.New("odometer value must not be negative")

// ManualSource emits readings pushed in-process.
//
// The latest pushed value is remembered and delivered on every Start, the
// way a hardware counter reports its current value when a listener attaches.
type ManualSource struct {
	mu     sync.Mutex
	fn     Handler
	latest *int64
	now    func() time.Time
}

// NewManualSource creates a stopped ManualSource.
func NewManualSource() *ManualSource {
	return &ManualSource{now: time.Now}
}

// Name implements Source.
func (s *ManualSource) Name() string {
	return KindManual
}

// Start implements Source. The latest value, if any, is delivered immediately.
func (s *ManualSource) Start(_ context.Context, _ time.Time, fn Handler) error {
	s.mu.Lock()
	s.fn = fn
	latest := s.latest
	s.mu.Unlock()

	if latest != nil {
		fn(s.reading(*latest))
	}
	return nil
}

// Stop implements Source.
func (s *ManualSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = nil
	return nil
}

// Push records value and emits it to the running handler, if any.
func (s *ManualSource) Push(value int64) error {
	if value < 0 {
		return ErrNegativeValue
	}

	s.mu.Lock()
	fn := s.fn
	s.latest = &value
	s.mu.Unlock()

	if fn != nil {
		fn(s.reading(value))
	}
	return nil
}

// Running reports whether a handler is attached.
func (s *ManualSource) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn != nil
}

func (s *ManualSource) reading(value int64) tracker.Reading {
	return tracker.Reading{
		OdometerValue: value,
		ObservedAt:    s.now(),
		Source:        KindManual,
	}
}
