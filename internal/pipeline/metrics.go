package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/theroutercompany/docsync/internal/docstring"
	"github.com/theroutercompany/docsync/pkg/metrics"
)

// Metrics records pipeline activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	files    *prometheus.CounterVec
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the pipeline collectors on reg. It returns nil when reg is nil.
func NewMetrics(reg *metrics.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: reg.Name("pipeline_runs_total"),
			Help: "Push events handled, by outcome.",
		}, []string{"outcome"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: reg.Name("pipeline_files_total"),
			Help: "Files considered for docstring generation, by result.",
		}, []string{"result"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: reg.Name("generation_attempts_total"),
			Help: "Docstring generation attempts, by model and outcome.",
		}, []string{"model", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    reg.Name("pipeline_run_duration_seconds"),
			Help:    "Duration of admitted pipeline runs.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
	}

	reg.Register(m.runs)
	reg.Register(m.files)
	reg.Register(m.attempts)
	reg.Register(m.duration)
	return m
}

// ObserveAttempt counts one generation attempt. It matches docstring.Options.Observer.
func (m *Metrics) ObserveAttempt(a docstring.Attempt) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(a.Model, string(a.Outcome)).Inc()
}

func (m *Metrics) observeRun(outcome string, started time.Time, admitted bool) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	if admitted {
		m.duration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) observeFile(result string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(result).Inc()
}
