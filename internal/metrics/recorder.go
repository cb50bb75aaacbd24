// Package metrics exposes tracker and driver activity as Prometheus metrics.
package metrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/stepd/internal/tracker"
)

// Recorder implements tracker.Observer and the driver's cycle recorder
// using Prometheus metrics. A nil *Recorder is a valid no-op.
type Recorder struct {
	readings      *prom.CounterVec
	stepsAdded    prom.Counter
	todaySteps    prom.Gauge
	sensorValue   prom.Gauge
	storageErrors *prom.CounterVec
	cycles        *prom.CounterVec
	duplicates    prom.Counter
}

// NewRecorder constructs the metrics and registers them on reg.
// Registering twice on one registry panics.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{}
	r.readings = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "stepd",
		Name:      "readings_total",
		Help:      "Sensor readings reconciled, by outcome",
	}, []string{"outcome"})
	r.stepsAdded = prom.NewCounter(prom.CounterOpts{
		Namespace: "stepd",
		Name:      "steps_added_total",
		Help:      "Steps added to daily totals",
	})
	r.todaySteps = prom.NewGauge(prom.GaugeOpts{
		Namespace: "stepd",
		Name:      "today_steps",
		Help:      "Cumulative steps for the current day",
	})
	r.sensorValue = prom.NewGauge(prom.GaugeOpts{
		Namespace: "stepd",
		Name:      "last_sensor_value",
		Help:      "Most recent raw odometer reading",
	})
	r.storageErrors = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "stepd",
		Name:      "storage_errors_total",
		Help:      "Failed key-value operations, by operation",
	}, []string{"op"})
	r.cycles = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "stepd",
		Name:      "checkin_cycles_total",
		Help:      "Keep-alive check-in cycles, by result",
	}, []string{"result"})
	r.duplicates = prom.NewCounter(prom.CounterOpts{
		Namespace: "stepd",
		Name:      "duplicate_readings_total",
		Help:      "Readings discarded because the cycle already had one",
	})
	reg.MustRegister(r.readings, r.stepsAdded, r.todaySteps, r.sensorValue, r.storageErrors, r.cycles, r.duplicates)
	return r
}

// ObserveReading implements tracker.Observer.
func (r *Recorder) ObserveReading(outcome tracker.Outcome, delta int64, rec tracker.Record) {
	if r == nil || r.readings == nil {
		return
	}
	r.readings.WithLabelValues(string(outcome)).Inc()
	if delta > 0 {
		r.stepsAdded.Add(float64(delta))
	}
	r.todaySteps.Set(float64(rec.CumulativeSteps))
	r.sensorValue.Set(float64(rec.LastSensorValue))
}

// IncStorageError implements tracker.Observer.
func (r *Recorder) IncStorageError(op string) {
	if r == nil || r.storageErrors == nil {
		return
	}
	r.storageErrors.WithLabelValues(op).Inc()
}

// IncCycle counts one keep-alive cycle.
func (r *Recorder) IncCycle(result string) {
	if r == nil || r.cycles == nil {
		return
	}
	r.cycles.WithLabelValues(result).Inc()
}

// IncDuplicate counts one discarded duplicate reading.
func (r *Recorder) IncDuplicate() {
	if r == nil || r.duplicates == nil {
		return
	}
	r.duplicates.Inc()
}

// SetToday sets the today gauge without a reading (startup rehydration).
func (r *Recorder) SetToday(rec tracker.Record) {
	if r == nil || r.todaySteps == nil {
		return
	}
	r.todaySteps.Set(float64(rec.CumulativeSteps))
	r.sensorValue.Set(float64(rec.LastSensorValue))
}

// Handler returns an http.Handler that serves the registry's metrics.
func Handler(reg *prom.Registry) http.Handler {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
