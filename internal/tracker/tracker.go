package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultMaxDelta is the largest per-reading increment accepted by default.
// Larger jumps are treated as driver glitches and discarded.
const DefaultMaxDelta = 500

// Outcome classifies how a reading was reconciled.
type Outcome string

const (
	// OutcomeProgress is normal monotonic progress (delta > 0).
	OutcomeProgress Outcome = "progress"

	// OutcomeReset means the odometer dropped and the full reading was counted.
	OutcomeReset Outcome = "reset"

	// OutcomeClamped means the delta exceeded MaxDelta and was discarded.
	OutcomeClamped Outcome = "clamped"

	// OutcomeIdle means the reading added nothing (delta == 0).
	OutcomeIdle Outcome = "idle"

	// OutcomeBaseline means the reading only established the sensor baseline.
	OutcomeBaseline Outcome = "baseline"
)

// Observer receives reconciliation events (metrics hook).
// Implementations must be safe to call while the tracker holds its lock.
type Observer interface {
	ObserveReading(outcome Outcome, delta int64, rec Record)
	IncStorageError(op string)
}

type nopObserver struct{}

func (nopObserver) ObserveReading(Outcome, int64, Record) {}
func (nopObserver) IncStorageError(string)                {}

// Reconcile computes the steps attributable to a reading.
//
// A reading at or above last is normal progress. A reading below last is a
// sensor reset and counts in full. Any delta above maxDelta is discarded;
// maxDelta <= 0 disables the filter.
func Reconcile(last, current, maxDelta int64) (int64, Outcome) {
	delta := current - last
	outcome := OutcomeProgress
	if current < last {
		delta = current
		outcome = OutcomeReset
	}

	if maxDelta > 0 && delta > maxDelta {
		return 0, OutcomeClamped
	}
	if delta == 0 && outcome == OutcomeProgress {
		return 0, OutcomeIdle
	}
	return delta, outcome
}

// Tracker is the reconciliation core. It owns the persisted Record.
//
// Thread-safety: all methods serialize on an internal mutex, so the KV
// never sees interleaved read-modify-write cycles.
type Tracker struct {
	mu sync.Mutex

	kv            KV
	clock         Clock
	loc           *time.Location
	maxDelta      int64
	baselineFirst bool
	observer      Observer
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the wall clock used for day boundaries.
func WithClock(c Clock) Option {
	return func(t *Tracker) {
		t.clock = c
	}
}

// WithLocation sets the time zone that defines midnight.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		t.loc = loc
	}
}

// WithMaxDelta sets the anomaly threshold.
//
// Default: 500 steps (DefaultMaxDelta). Zero or negative disables the filter.
func WithMaxDelta(n int64) Option {
	return func(t *Tracker) {
		t.maxDelta = n
	}
}

// WithBaselineOnFirstReading makes the first reading ever seen (no stored
// sensor value) set the baseline without counting as progress.
func WithBaselineOnFirstReading(enabled bool) Option {
	return func(t *Tracker) {
		t.baselineFirst = enabled
	}
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(t *Tracker) {
		if o != nil {
			t.observer = o
		}
	}
}

// New creates a Tracker persisting through kv.
func New(kv KV, opts ...Option) *Tracker {
	t := &Tracker{
		kv:       kv,
		clock:    SystemClock{},
		loc:      time.Local,
		maxDelta: DefaultMaxDelta,
		observer: nopObserver{},
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// MaxDelta returns the configured anomaly threshold.
func (t *Tracker) MaxDelta() int64 {
	return t.maxDelta
}

// OnReading reconciles one raw reading into today's total.
//
// The updated record is persisted before returning, including when the
// reading adds nothing, so the last sensor value always tracks the latest
// raw reading. A persist failure is returned as a *StorageError together
// with the record that was computed; state on disk is left untouched.
func (t *Tracker) OnReading(ctx context.Context, r Reading) (Record, error) {
	if r.OdometerValue < 0 {
		return Record{}, fmt.Errorf("on reading %d: %w", r.OdometerValue, ErrNegativeReading)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, hasBaseline := t.load(ctx)
	t.rollover(&rec)

	var delta int64
	var outcome Outcome
	if t.baselineFirst && !hasBaseline {
		outcome = OutcomeBaseline
	} else {
		delta, outcome = Reconcile(rec.LastSensorValue, r.OdometerValue, t.maxDelta)
	}

	if delta > 0 {
		rec.CumulativeSteps += delta
	}
	rec.LastSensorValue = r.OdometerValue

	switch outcome {
	case OutcomeClamped:
		slog.Warn("implausible step jump discarded",
			"odometer", r.OdometerValue,
			"max_delta", t.maxDelta,
			"source", r.Source,
		)
	case OutcomeReset:
		slog.Info("sensor reset detected",
			"odometer", r.OdometerValue,
			"delta", delta,
			"source", r.Source,
		)
	}

	if err := t.persist(ctx, rec, true); err != nil {
		return rec, err
	}

	t.observer.ObserveReading(outcome, delta, rec)

	slog.Debug("reading reconciled",
		"day", rec.Day,
		"odometer", r.OdometerValue,
		"delta", delta,
		"outcome", outcome,
		"total", rec.CumulativeSteps,
	)

	return rec, nil
}

// TodaySteps returns today's cumulative steps.
// Crossing midnight zeroes and persists the total as a side effect.
func (t *Tracker) TodaySteps(ctx context.Context) int64 {
	return t.Today(ctx).CumulativeSteps
}

// Today returns the current record after applying day rollover.
func (t *Tracker) Today(ctx context.Context) Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, _ := t.load(ctx)
	if t.rollover(&rec) {
		// Only day and total change; an absent sensor value stays absent.
		if err := t.persist(ctx, rec, false); err != nil {
			slog.Error("persist day rollover", "day", rec.Day, "error", err)
		}
	}
	return rec
}

// Reset zeroes today's total and forgets the sensor baseline.
func (t *Tracker) Reset(ctx context.Context) (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := Record{Day: t.today()}
	err := t.kv.SetMany(ctx, map[string]any{
		KeyStepsDate:       string(rec.Day),
		KeyCumulativeSteps: int64(0),
		KeyLastSensorCount: nil,
	})
	if err != nil {
		t.observer.IncStorageError("set_many")
		return rec, &StorageError{Op: "set_many", Day: rec.Day, Err: err}
	}

	slog.Info("steps reset", "day", rec.Day)
	return rec, nil
}

func (t *Tracker) today() Day {
	return DayOf(t.clock.Now(), t.loc)
}

// load reads the stored record. Missing, malformed or unreadable values
// default to zero; a malformed day reads as no day, so rollover applies. The bool reports whether a sensor value was stored.
func (t *Tracker) load(ctx context.Context) (Record, bool) {
	var rec Record

	day, ok, err := t.kv.GetString(ctx, KeyStepsDate)
	if err != nil {
		t.readFailed("get_string", KeyStepsDate, err)
	} else if ok {
		if d := Day(day); d.Valid() {
			rec.Day = d
		} else {
			slog.Warn("malformed stored day, starting a new one", "key", KeyStepsDate, "value", day)
		}
	}

	rec.CumulativeSteps = t.number(ctx, KeyCumulativeSteps)

	last, hasBaseline, err := t.kv.GetNumber(ctx, KeyLastSensorCount)
	if err != nil {
		t.readFailed("get_number", KeyLastSensorCount, err)
		hasBaseline = false
	} else if last > 0 {
		rec.LastSensorValue = last
	}

	return rec, hasBaseline
}

func (t *Tracker) number(ctx context.Context, key string) int64 {
	n, ok, err := t.kv.GetNumber(ctx, key)
	if err != nil {
		t.readFailed("get_number", key, err)
		return 0
	}
	if !ok || n < 0 {
		return 0
	}
	return n
}

func (t *Tracker) readFailed(op, key string, err error) {
	t.observer.IncStorageError(op)
	slog.Warn("storage read failed, using zero value", "key", key, "error", err)
}

// rollover zeroes the total when the stored day is not today.
// Returns true if the record changed day.
func (t *Tracker) rollover(rec *Record) bool {
	today := t.today()
	if rec.Day == today {
		return false
	}

	if rec.Day != "" {
		slog.Info("day rollover",
			"from", rec.Day,
			"to", today,
			"steps", rec.CumulativeSteps,
		)
	}
	rec.Day = today
	rec.CumulativeSteps = 0
	return true
}

// persist writes the record in one batch. withSensor controls whether the
// last sensor value is part of the batch.
func (t *Tracker) persist(ctx context.Context, rec Record, withSensor bool) error {
	values := map[string]any{
		KeyStepsDate:       string(rec.Day),
		KeyCumulativeSteps: rec.CumulativeSteps,
	}
	if withSensor {
		values[KeyLastSensorCount] = rec.LastSensorValue
	}

	if err := t.kv.SetMany(ctx, values); err != nil {
		t.observer.IncStorageError("set_many")
		return &StorageError{Op: "set_many", Day: rec.Day, Err: err}
	}
	return nil
}
