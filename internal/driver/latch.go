package driver

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/stepd/internal/tracker"
)

// Latch accepts exactly one reading per check-in cycle.
//
// A restarted source and a stale callback from its previous instance can
// both deliver within one cycle; only the first is kept.
type Latch struct {
	once sync.Once
	ch   chan tracker.Reading
}

// NewLatch creates an open latch.
func NewLatch() *Latch {
	return &Latch{ch: make(chan tracker.Reading, 1)}
}

// Offer submits a reading. Returns true only for the first call.
// Never blocks.
func (l *Latch) Offer(r tracker.Reading) bool {
	accepted := false
	l.once.Do(func() {
		l.ch <- r
		accepted = true
	})
	return accepted
}

// Wait returns the accepted reading, waiting at most timeout.
// Returns false on timeout or context cancellation.
func (l *Latch) Wait(ctx context.Context, timeout time.Duration) (tracker.Reading, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-l.ch:
		return r, true
	case <-timer.C:
		return tracker.Reading{}, false
	case <-ctx.Done():
		return tracker.Reading{}, false
	}
}
