package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/roach88/stepd/internal/publish"
	"github.com/roach88/stepd/internal/sensor"
	"github.com/roach88/stepd/internal/tracker"
)

const (
	// DefaultInterval is the time between check-in cycles.
	DefaultInterval = 2 * time.Second

	// DefaultReadingTimeout bounds how long a cycle waits for a reading.
	DefaultReadingTimeout = time.Second
)

// DefaultEpoch is the reference point handed to sources. Asking for steps
// since 2000-01-01 yields the device's total odometer.
var DefaultEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Cycle results, used as metric labels.
const (
	CycleReading     = "reading"
	CycleTimeout     = "timeout"
	CycleSourceError = "source_error"
	CycleError       = "error"
)

// Reconciler is the part of the tracker the driver needs.
type Reconciler interface {
	OnReading(ctx context.Context, r tracker.Reading) (tracker.Record, error)
	Today(ctx context.Context) tracker.Record
}

// Recorder counts driver activity.
type Recorder interface {
	IncCycle(result string)
	IncDuplicate()
	SetToday(rec tracker.Record)
}

type nopRecorder struct{}

func (nopRecorder) IncCycle(string)         {}
func (nopRecorder) IncDuplicate()           {}
func (nopRecorder) SetToday(tracker.Record) {}

// Driver runs periodic check-in cycles against a sensor source.
//
// Thread-safety model:
//   - Start/Stop/Session: safe from any goroutine
//   - RunCycle: safe from any goroutine; cycles are serialized
type Driver struct {
	core      Reconciler
	source    sensor.Source
	publisher publish.Publisher
	recorder  Recorder

	interval       time.Duration
	readingTimeout time.Duration
	epoch          time.Time
	goal           int64
	now            func() time.Time

	// lifeMu serializes Start and Stop. mu guards session only, so a
	// cycle can read the session while Stop waits for that cycle.
	lifeMu    sync.Mutex
	scheduler gocron.Scheduler
	cancel    context.CancelFunc

	mu      sync.Mutex
	session *Session

	cycleMu sync.Mutex
}

// Option configures a Driver.
type Option func(*Driver)

// WithInterval sets the check-in interval.
func WithInterval(d time.Duration) Option {
	return func(dr *Driver) {
		if d > 0 {
			dr.interval = d
		}
	}
}

// WithReadingTimeout sets how long a cycle waits for its reading.
func WithReadingTimeout(d time.Duration) Option {
	return func(dr *Driver) {
		if d > 0 {
			dr.readingTimeout = d
		}
	}
}

// WithEpoch sets the advisory reference epoch passed to the source.
func WithEpoch(t time.Time) Option {
	return func(dr *Driver) {
		dr.epoch = t
	}
}

// WithGoal sets the daily goal reported in published progress.
func WithGoal(goal int64) Option {
	return func(dr *Driver) {
		dr.goal = goal
	}
}

// WithPublisher sets where progress updates go.
func WithPublisher(p publish.Publisher) Option {
	return func(dr *Driver) {
		if p != nil {
			dr.publisher = p
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(dr *Driver) {
		if r != nil {
			dr.recorder = r
		}
	}
}

// WithNow overrides the wall clock used for timestamps.
func WithNow(now func() time.Time) Option {
	return func(dr *Driver) {
		dr.now = now
	}
}

// New creates a stopped Driver.
func New(core Reconciler, source sensor.Source, opts ...Option) *Driver {
	d := &Driver{
		core:           core,
		source:         source,
		publisher:      publish.LogPublisher{},
		recorder:       nopRecorder{},
		interval:       DefaultInterval,
		readingTimeout: DefaultReadingTimeout,
		epoch:          DefaultEpoch,
		goal:           publish.DefaultGoal,
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Start rehydrates state from the store, publishes it, and schedules
// check-in cycles. Starting an active driver returns the existing session.
func (d *Driver) Start(ctx context.Context) (*Session, error) {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	if current := d.Session(); current != nil {
		return current, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	session := newSession(d.source.Name(), d.now())

	// Rehydrate before any fresh reading arrives
	rec := d.core.Today(runCtx)
	d.recorder.SetToday(rec)
	d.publish(runCtx, session, rec)

	s, err := gocron.NewScheduler()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(d.interval),
		gocron.NewTask(func() { d.cycle(runCtx) }),
		gocron.WithName("stepd-checkin"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create check-in job: %w", err)
	}

	d.scheduler = s
	d.cancel = cancel
	d.mu.Lock()
	d.session = session
	d.mu.Unlock()

	s.Start()

	slog.Info("reconciliation session started",
		"session", session.ID,
		"source", session.Source,
		"day", rec.Day,
		"steps", rec.CumulativeSteps,
		"interval", d.interval,
	)

	return session, nil
}

// Stop halts scheduling and the sensor source. Safe to call repeatedly and
// on a driver that was never started.
func (d *Driver) Stop() error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	session := d.Session()
	if session == nil {
		return d.source.Stop()
	}

	d.cancel()
	schedErr := d.scheduler.Shutdown()

	// Wait for an in-flight cycle before stopping its source
	d.cycleMu.Lock()
	srcErr := d.source.Stop()
	d.cycleMu.Unlock()

	session.end(d.now())
	stats := session.Stats()
	slog.Info("reconciliation session stopped",
		"session", stats.ID,
		"cycles", stats.Cycles,
		"readings", stats.Readings,
		"timeouts", stats.Timeouts,
	)

	d.mu.Lock()
	d.session = nil
	d.mu.Unlock()
	d.scheduler = nil
	d.cancel = nil

	if err := errors.Join(schedErr, srcErr); err != nil {
		return fmt.Errorf("stop driver: %w", err)
	}
	return nil
}

// Session returns the active session, or nil when stopped.
func (d *Driver) Session() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

// RunCycle performs one check-in: restart the source, take the first
// reading within the timeout, reconcile and publish it. The source is
// stopped again before RunCycle returns.
//
// Returns ok=false when no reading arrived in time; that is not an error.
func (d *Driver) RunCycle(ctx context.Context) (tracker.Record, bool, error) {
	session := d.Session()

	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()

	d.stopSource()

	latch := NewLatch()
	handler := func(r tracker.Reading) {
		if !latch.Offer(r) {
			d.recorder.IncDuplicate()
			slog.Debug("duplicate reading discarded", "odometer", r.OdometerValue, "source", r.Source)
		}
	}

	if err := d.source.Start(ctx, d.epoch, handler); err != nil {
		d.recorder.IncCycle(CycleSourceError)
		return tracker.Record{}, false, fmt.Errorf("start source %s: %w", d.source.Name(), err)
	}
	// Detached until the next restart, which reports the source's current value.
	defer d.stopSource()

	reading, ok := latch.Wait(ctx, d.readingTimeout)
	if !ok {
		d.recorder.IncCycle(CycleTimeout)
		session.recordCycle(false)
		slog.Debug("no reading this cycle", "source", d.source.Name(), "timeout", d.readingTimeout)
		return tracker.Record{}, false, ctx.Err()
	}

	rec, err := d.core.OnReading(ctx, reading)
	session.recordCycle(true)
	if err != nil {
		d.recorder.IncCycle(CycleError)
		return rec, true, fmt.Errorf("reconcile reading: %w", err)
	}

	d.recorder.IncCycle(CycleReading)
	d.publish(ctx, session, rec)

	return rec, true, nil
}

// cycle is the scheduled task body. Errors are logged; the next cycle
// retries with a fresh source.
func (d *Driver) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, _, err := d.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("check-in cycle failed", "error", err)
	}
}

func (d *Driver) stopSource() {
	if err := d.source.Stop(); err != nil {
		slog.Warn("stopping sensor source", "source", d.source.Name(), "error", err)
	}
}

func (d *Driver) publish(ctx context.Context, session *Session, rec tracker.Record) {
	p := publish.NewProgress(rec, d.goal, d.now())
	if session != nil {
		p.Session = session.ID
	}
	if err := d.publisher.Publish(ctx, p); err != nil {
		slog.Warn("publish progress", "day", p.Day, "error", err)
	}
}
