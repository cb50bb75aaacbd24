// Package publish delivers daily progress updates to interested listeners.
//
// The tracker's output used to drive an on-device notification ("N steps
// today" with a goal progress bar). Here each update is a Progress value
// handed to a Publisher: a NATS subject in deployments, the log otherwise.
package publish

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/roach88/stepd/internal/tracker"
)

// DefaultGoal is the daily step goal used when none is configured.
const DefaultGoal = 10000

// Progress is one published daily total.
type Progress struct {
	Session string    `json:"session,omitempty"`
	Day     string    `json:"day"`
	Steps   int64     `json:"steps"`
	Goal    int64     `json:"goal"`
	Percent float64   `json:"percent"`
	At      time.Time `json:"at"`
}

// NewProgress derives a Progress from a record. Percent is rounded to one
// decimal place and may exceed 100.
func NewProgress(rec tracker.Record, goal int64, at time.Time) Progress {
	return Progress{
		Day:     rec.Day.String(),
		Steps:   rec.CumulativeSteps,
		Goal:    goal,
		Percent: Percent(rec.CumulativeSteps, goal),
		At:      at,
	}
}

// Percent returns steps as a percentage of goal, one decimal place.
// A non-positive goal yields 0.
func Percent(steps, goal int64) float64 {
	if goal <= 0 {
		return 0
	}
	return math.Round(float64(steps)*1000/float64(goal)) / 10
}

// Publisher delivers progress updates.
type Publisher interface {
	Publish(ctx context.Context, p Progress) error
	Close() error
}

// LogPublisher writes progress updates to the default slog logger.
type LogPublisher struct{}

// Publish implements Publisher.
func (LogPublisher) Publish(_ context.Context, p Progress) error {
	slog.Info("progress",
		"day", p.Day,
		"steps", p.Steps,
		"goal", p.Goal,
		"percent", p.Percent,
		"session", p.Session,
	)
	return nil
}

// Close implements Publisher.
func (LogPublisher) Close() error {
	return nil
}
