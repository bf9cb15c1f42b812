// Package metrics exports run statistics in the Prometheus text format, for
// pickup by a node_exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunStats summarizes one matrix build
type RunStats struct {
	ProjectID  string
	Level      string
	Tests      int
	Width      int
	Mapped     int
	Mismatched int
	Failures   int
	Duration   time.Duration
	Finished   time.Time
}

// Recorder holds the gauges of a private registry
type Recorder struct {
	registry   *prometheus.Registry
	tests      *prometheus.GaugeVec
	width      *prometheus.GaugeVec
	mapped     *prometheus.GaugeVec
	mismatched *prometheus.GaugeVec
	failures   *prometheus.GaugeVec
	duration   *prometheus.GaugeVec
	finished   *prometheus.GaugeVec
}

// NewRecorder creates a recorder with every covmatrix gauge registered
func NewRecorder() *Recorder {
	labels := []string{"project", "level"}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "covmatrix",
			Name:      name,
			Help:      help,
		}, labels)
	}

	r := &Recorder{
		registry:   prometheus.NewRegistry(),
		tests:      gauge("tests", "Coverage reports scored in the last run."),
		width:      gauge("elements", "Matrix width taken from the first report."),
		mapped:     gauge("reports_mapped", "Reports matched to a canonical test name."),
		mismatched: gauge("reports_mismatched", "Reports whose element count differs from the width."),
		failures:   gauge("reports_failed", "Reports that could not be scored."),
		duration:   gauge("run_duration_seconds", "Wall time of the last run."),
		finished:   gauge("last_run_timestamp_seconds", "Unix time the last run finished."),
	}
	r.registry.MustRegister(r.tests, r.width, r.mapped, r.mismatched, r.failures, r.duration, r.finished)
	return r
}

// Observe sets every gauge from stats
func (r *Recorder) Observe(stats RunStats) {
	l := prometheus.Labels{"project": stats.ProjectID, "level": stats.Level}
	r.tests.With(l).Set(float64(stats.Tests))
	r.width.With(l).Set(float64(stats.Width))
	r.mapped.With(l).Set(float64(stats.Mapped))
	r.mismatched.With(l).Set(float64(stats.Mismatched))
	r.failures.With(l).Set(float64(stats.Failures))
	r.duration.With(l).Set(stats.Duration.Seconds())
	if !stats.Finished.IsZero() {
		r.finished.With(l).Set(float64(stats.Finished.Unix()))
	}
}

// Gatherer exposes the private registry
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile atomically replaces path with the current gauge values
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
