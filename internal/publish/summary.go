package publish

import (
	"math"

	"github.com/roach88/stepd/internal/tracker"
)

// Summary is a day's total with derived figures for display.
type Summary struct {
	Day             string  `json:"day"`
	Steps           int64   `json:"steps"`
	LastSensorValue int64   `json:"last_sensor_value"`
	Goal            int64   `json:"goal"`
	Percent         float64 `json:"percent"`
	DistanceKm      float64 `json:"distance_km"`
	Kcal            float64 `json:"kcal"`
}

// Body holds the per-step factors used to derive distance and energy.
type Body struct {
	StrideM     float64
	KcalPerStep float64
}

// NewSummary derives a Summary. Distance and energy are rounded to two
// decimal places.
func NewSummary(rec tracker.Record, goal int64, body Body) Summary {
	steps := float64(rec.CumulativeSteps)
	return Summary{
		Day:             rec.Day.String(),
		Steps:           rec.CumulativeSteps,
		LastSensorValue: rec.LastSensorValue,
		Goal:            goal,
		Percent:         Percent(rec.CumulativeSteps, goal),
		DistanceKm:      round2(steps * body.StrideM / 1000),
		Kcal:            round2(steps * body.KcalPerStep),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
