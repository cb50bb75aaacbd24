package driver

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session represents one active reconciliation run. It replaces any
// process-wide "service running" flag: whoever holds the Session knows the
// driver is active.
//
// Thread-safety: Session is safe for concurrent use.
type Session struct {
	ID        string
	Source    string
	StartedAt time.Time

	mu        sync.Mutex
	stoppedAt time.Time
	cycles    int64
	readings  int64
	timeouts  int64
}

// SessionStats is a point-in-time copy of a session's counters.
type SessionStats struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Active    bool      `json:"active"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	Cycles    int64     `json:"cycles"`
	Readings  int64     `json:"readings"`
	Timeouts  int64     `json:"timeouts"`
}

// newSession creates an active session with a time-sortable UUIDv7 id.
func newSession(source string, now time.Time) *Session {
	return &Session{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Source:    source,
		StartedAt: now,
	}
}

// Active reports whether the session has not been stopped.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stoppedAt.IsZero()
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStats{
		ID:        s.ID,
		Source:    s.Source,
		Active:    s.stoppedAt.IsZero(),
		StartedAt: s.StartedAt,
		StoppedAt: s.stoppedAt,
		Cycles:    s.cycles,
		Readings:  s.readings,
		Timeouts:  s.timeouts,
	}
}

func (s *Session) recordCycle(gotReading bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	if gotReading {
		s.readings++
	} else {
		s.timeouts++
	}
}

func (s *Session) end(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stoppedAt.IsZero() {
		s.stoppedAt = now
	}
}
