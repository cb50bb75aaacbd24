package publish

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/stepd/internal/tracker"
)

func TestNewSummary(t *testing.T) {
	rec := tracker.Record{Day: "2026-10-16", CumulativeSteps: 8342, LastSensorValue: 20000}

	s := NewSummary(rec, 10000, Body{StrideM: 0.762, KcalPerStep: 0.04})

	assert.Equal(t, "2026-10-16", s.Day)
	assert.Equal(t, int64(8342), s.Steps)
	assert.Equal(t, int64(20000), s.LastSensorValue)
	assert.Equal(t, int64(10000), s.Goal)
	assert.Equal(t, 83.4, s.Percent)
	assert.Equal(t, 6.36, s.DistanceKm)
	assert.Equal(t, 333.68, s.Kcal)
}

func TestNewSummary_ZeroFactors(t *testing.T) {
	s := NewSummary(tracker.Record{Day: "2026-10-16", CumulativeSteps: 100}, 0, Body{})

	assert.Zero(t, s.Percent)
	assert.Zero(t, s.DistanceKm)
	assert.Zero(t, s.Kcal)
}
