package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepd/internal/store"
	"github.com/roach88/stepd/internal/testutil"
)

var (
	noon      = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	today     = Day("2026-10-16")
	yesterday = Day("2026-10-15")
)

func newTestTracker(t *testing.T, opts ...Option) (*Tracker, *store.Memory, *testutil.FakeClock) {
	t.Helper()
	kv := store.NewMemory()
	clock := testutil.NewFakeClock(noon)
	all := append([]Option{WithClock(clock), WithLocation(time.UTC)}, opts...)
	return New(kv, all...), kv, clock
}

func seed(t *testing.T, kv KV, day Day, steps, last int64) {
	t.Helper()
	require.NoError(t, kv.SetMany(context.Background(), map[string]any{
		KeyStepsDate:       string(day),
		KeyCumulativeSteps: steps,
		KeyLastSensorCount: last,
	}))
}

func reading(v int64) Reading {
	return Reading{OdometerValue: v, Source: "test"}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name      string
		last      int64
		current   int64
		maxDelta  int64
		wantDelta int64
		want      Outcome
	}{
		{"progress", 100, 150, 500, 50, OutcomeProgress},
		{"idle", 100, 100, 500, 0, OutcomeIdle},
		{"reset counts full value", 5000, 12, 500, 12, OutcomeReset},
		{"reset to zero", 5000, 0, 500, 0, OutcomeReset},
		{"jump clamped", 0, 5000, 1000, 0, OutcomeClamped},
		{"reset clamped", 5000, 4000, 1000, 0, OutcomeClamped},
		{"delta at limit accepted", 0, 1000, 1000, 1000, OutcomeProgress},
		{"filter disabled", 0, 100000, 0, 100000, OutcomeProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta, outcome := Reconcile(tt.last, tt.current, tt.maxDelta)
			assert.Equal(t, tt.wantDelta, delta)
			assert.Equal(t, tt.want, outcome)
		})
	}
}

func TestOnReading_FirstEverReading(t *testing.T) {
	tr, kv, _ := newTestTracker(t)

	rec, err := tr.OnReading(context.Background(), reading(50))
	require.NoError(t, err)
	assert.Equal(t, Record{Day: today, CumulativeSteps: 50, LastSensorValue: 50}, rec)

	assert.Equal(t, map[string]any{
		KeyStepsDate:       "2026-10-16",
		KeyCumulativeSteps: int64(50),
		KeyLastSensorCount: int64(50),
	}, kv.Snapshot())
}

func TestOnReading_MonotonicAccumulation(t *testing.T) {
	tr, kv, _ := newTestTracker(t, WithMaxDelta(0))
	const first = 12000
	seed(t, kv, today, 0, first)

	odometer := []int64{first, 12010, 12010, 12250, 12999, 13400}
	var rec Record
	var err error
	for _, v := range odometer {
		rec, err = tr.OnReading(context.Background(), reading(v))
		require.NoError(t, err)
	}

	assert.Equal(t, odometer[len(odometer)-1]-first, rec.CumulativeSteps)
	assert.Equal(t, int64(13400), rec.LastSensorValue)
}

func TestOnReading_ResetSafety(t *testing.T) {
	tr, kv, _ := newTestTracker(t)
	seed(t, kv, today, 700, 5000)

	rec, err := tr.OnReading(context.Background(), reading(12))
	require.NoError(t, err)
	assert.Equal(t, int64(712), rec.CumulativeSteps, "reset must add exactly the new reading")
	assert.Equal(t, int64(12), rec.LastSensorValue)
}

func TestOnReading_AnomalyClamp(t *testing.T) {
	tr, kv, _ := newTestTracker(t, WithMaxDelta(1000))
	seed(t, kv, today, 300, 100)

	rec, err := tr.OnReading(context.Background(), reading(5100))
	require.NoError(t, err)
	assert.Equal(t, int64(300), rec.CumulativeSteps, "clamped reading must not change the total")
	assert.Equal(t, int64(5100), rec.LastSensorValue, "clamped reading still moves the baseline")

	last, ok, err := kv.GetNumber(context.Background(), KeyLastSensorCount)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5100), last)

	// Progress resumes from the new baseline
	rec, err = tr.OnReading(context.Background(), reading(5130))
	require.NoError(t, err)
	assert.Equal(t, int64(330), rec.CumulativeSteps)
}

func TestOnReading_DefaultMaxDelta(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	assert.Equal(t, int64(DefaultMaxDelta), tr.MaxDelta())

	rec, err := tr.OnReading(context.Background(), reading(DefaultMaxDelta+1))
	require.NoError(t, err)
	assert.Zero(t, rec.CumulativeSteps)
}

func TestOnReading_EndToEndWithReboot(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	rec, err := tr.OnReading(ctx, reading(50))
	require.NoError(t, err)
	assert.Equal(t, int64(50), rec.CumulativeSteps)

	// Reboot: odometer restarts below the stored value
	rec, err = tr.OnReading(ctx, reading(10))
	require.NoError(t, err)
	assert.Equal(t, int64(60), rec.CumulativeSteps)
	assert.Equal(t, int64(10), rec.LastSensorValue)
}

func TestOnReading_RollsOverBeforeCounting(t *testing.T) {
	tr, kv, _ := newTestTracker(t)
	seed(t, kv, yesterday, 8342, 1000)

	rec, err := tr.OnReading(context.Background(), reading(1200))
	require.NoError(t, err)
	assert.Equal(t, today, rec.Day)
	assert.Equal(t, int64(200), rec.CumulativeSteps, "odometer delta across midnight belongs to the new day")
}

func TestOnReading_CrossesMidnight(t *testing.T) {
	tr, _, clock := newTestTracker(t)
	ctx := context.Background()
	clock.Set(time.Date(2026, 10, 16, 23, 59, 0, 0, time.UTC))

	_, err := tr.OnReading(ctx, reading(400))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	rec, err := tr.OnReading(ctx, reading(430))
	require.NoError(t, err)
	assert.Equal(t, Day("2026-10-17"), rec.Day)
	assert.Equal(t, int64(30), rec.CumulativeSteps)
}

func TestOnReading_NegativeRejected(t *testing.T) {
	tr, kv, _ := newTestTracker(t)
	seed(t, kv, today, 10, 10)

	_, err := tr.OnReading(context.Background(), reading(-1))
	require.ErrorIs(t, err, ErrNegativeReading)

	assert.Equal(t, int64(10), kv.Snapshot()[KeyCumulativeSteps])
}

func TestOnReading_BaselineOnFirstReading(t *testing.T) {
	tr, _, _ := newTestTracker(t, WithBaselineOnFirstReading(true), WithMaxDelta(0))
	ctx := context.Background()

	rec, err := tr.OnReading(ctx, reading(123456))
	require.NoError(t, err)
	assert.Zero(t, rec.CumulativeSteps)
	assert.Equal(t, int64(123456), rec.LastSensorValue)

	rec, err = tr.OnReading(ctx, reading(123500))
	require.NoError(t, err)
	assert.Equal(t, int64(44), rec.CumulativeSteps)
}

func TestTodaySteps_DayRollover(t *testing.T) {
	tr, kv, _ := newTestTracker(t)
	seed(t, kv, yesterday, 8342, 9100)

	assert.Equal(t, int64(0), tr.TodaySteps(context.Background()))

	assert.Equal(t, map[string]any{
		KeyStepsDate:       "2026-10-16",
		KeyCumulativeSteps: int64(0),
		KeyLastSensorCount: int64(9100),
	}, kv.Snapshot(), "rollover persists today with zero steps and keeps the sensor value")
}

func TestTodaySteps_SameDayIsPureRead(t *testing.T) {
	tr, kv, _ := newTestTracker(t)
	seed(t, kv, today, 77, 500)

	assert.Equal(t, int64(77), tr.TodaySteps(context.Background()))
	assert.Equal(t, int64(77), tr.TodaySteps(context.Background()))
}

func TestTodaySteps_EmptyStore(t *testing.T) {
	tr, kv, _ := newTestTracker(t)

	rec := tr.Today(context.Background())
	assert.Equal(t, Record{Day: today}, rec)

	_, hasSensor := kv.Snapshot()[KeyLastSensorCount]
	assert.False(t, hasSensor, "rollover must not invent a sensor baseline")
}

func TestTodaySteps_MalformedValuesDefaultToZero(t *testing.T) {
	tr, kv, _ := newTestTracker(t)
	ctx := context.Background()
	require.NoError(t, kv.SetMany(ctx, map[string]any{
		KeyStepsDate:       string(today),
		KeyCumulativeSteps: "garbage",
		KeyLastSensorCount: "also garbage",
	}))

	assert.Equal(t, int64(0), tr.TodaySteps(ctx))

	rec, err := tr.OnReading(ctx, reading(40))
	require.NoError(t, err)
	assert.Equal(t, int64(40), rec.CumulativeSteps)
}

func TestTodaySteps_MalformedDayStartsToday(t *testing.T) {
	tr, kv, _ := newTestTracker(t)
	ctx := context.Background()
	seed(t, kv, Day("16/10/2026"), 8342, 20000)

	rec := tr.Today(ctx)
	assert.Equal(t, today, rec.Day)
	assert.Equal(t, int64(0), rec.CumulativeSteps)
	assert.Equal(t, int64(20000), rec.LastSensorValue)

	stored, ok, err := kv.GetString(ctx, KeyStepsDate)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(today), stored, "the repaired day is persisted")
}

func TestTodaySteps_NegativeStoredTotalDefaultsToZero(t *testing.T) {
	tr, kv, _ := newTestTracker(t)
	seed(t, kv, today, -5, 0)

	assert.Equal(t, int64(0), tr.TodaySteps(context.Background()))
}

func TestReset(t *testing.T) {
	tr, kv, _ := newTestTracker(t)
	seed(t, kv, today, 4000, 9000)

	rec, err := tr.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Record{Day: today}, rec)

	assert.Equal(t, map[string]any{
		KeyStepsDate:       "2026-10-16",
		KeyCumulativeSteps: int64(0),
	}, kv.Snapshot())
}

// flakyKV fails reads or writes on demand.
type flakyKV struct {
	*store.Memory
	failReads  bool
	failWrites bool
}

var errDisk = errors.New("disk on fire")

func (f *flakyKV) GetNumber(ctx context.Context, key string) (int64, bool, error) {
	if f.failReads {
		return 0, false, errDisk
	}
	return f.Memory.GetNumber(ctx, key)
}

func (f *flakyKV) GetString(ctx context.Context, key string) (string, bool, error) {
	if f.failReads {
		return "", false, errDisk
	}
	return f.Memory.GetString(ctx, key)
}

func (f *flakyKV) SetMany(ctx context.Context, values map[string]any) error {
	if f.failWrites {
		return errDisk
	}
	return f.Memory.SetMany(ctx, values)
}

func TestOnReading_ReadFailureTreatedAsNoRecord(t *testing.T) {
	kv := &flakyKV{Memory: store.NewMemory()}
	seed(t, kv.Memory, today, 999, 5000)
	kv.failReads = true
	obs := &recordingObserver{}

	tr := New(kv, WithClock(testutil.NewFakeClock(noon)), WithLocation(time.UTC), WithObserver(obs))

	rec, err := tr.OnReading(context.Background(), reading(30))
	require.NoError(t, err)
	assert.Equal(t, Record{Day: today, CumulativeSteps: 30, LastSensorValue: 30}, rec)
	assert.NotZero(t, obs.storageErrors)
}

func TestOnReading_WriteFailureReturnsStorageError(t *testing.T) {
	kv := &flakyKV{Memory: store.NewMemory()}
	seed(t, kv.Memory, today, 100, 1000)
	kv.failWrites = true

	tr := New(kv, WithClock(testutil.NewFakeClock(noon)), WithLocation(time.UTC))

	rec, err := tr.OnReading(context.Background(), reading(1010))
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
	assert.ErrorIs(t, err, errDisk)
	assert.Equal(t, int64(110), rec.CumulativeSteps)

	// Nothing was partially applied
	assert.Equal(t, int64(100), kv.Memory.Snapshot()[KeyCumulativeSteps])
	assert.Equal(t, int64(1000), kv.Memory.Snapshot()[KeyLastSensorCount])
}

func TestToday_WriteFailureStillReturnsRolledRecord(t *testing.T) {
	kv := &flakyKV{Memory: store.NewMemory()}
	seed(t, kv.Memory, yesterday, 100, 1000)
	kv.failWrites = true

	tr := New(kv, WithClock(testutil.NewFakeClock(noon)), WithLocation(time.UTC))

	assert.Equal(t, int64(0), tr.TodaySteps(context.Background()))
}

type recordingObserver struct {
	mu            sync.Mutex
	outcomes      []Outcome
	added         int64
	storageErrors int
}

func (o *recordingObserver) ObserveReading(outcome Outcome, delta int64, _ Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
	o.added += delta
}

func (o *recordingObserver) IncStorageError(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.storageErrors++
}

func TestOnReading_ObserverSeesOutcomes(t *testing.T) {
	obs := &recordingObserver{}
	tr, _, _ := newTestTracker(t, WithObserver(obs), WithMaxDelta(100))
	ctx := context.Background()

	for _, v := range []int64{50, 50, 90, 10, 900} {
		_, err := tr.OnReading(ctx, reading(v))
		require.NoError(t, err)
	}

	assert.Equal(t, []Outcome{OutcomeProgress, OutcomeIdle, OutcomeProgress, OutcomeReset, OutcomeClamped}, obs.outcomes)
	assert.Equal(t, int64(100), obs.added)
}

func TestOnReading_ConcurrentCallersSerialize(t *testing.T) {
	tr, _, _ := newTestTracker(t, WithMaxDelta(0))
	ctx := context.Background()

	// Each goroutine reports the same odometer; only the first contributes.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tr.OnReading(ctx, reading(250))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(250), tr.TodaySteps(ctx))
}
