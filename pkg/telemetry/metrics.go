// Package telemetry counts remote calls, outcomes and limiter waits for one
// report run and writes them in the Prometheus textfile format.
package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fortiblox/stratus-reports/pkg/retry"
)

const namespace = "stratus_reports"

// Metrics holds the run's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Attempts      *prometheus.CounterVec
	Outcomes      *prometheus.CounterVec
	LimiterWaits  prometheus.Counter
	LimiterWaited prometheus.Counter
	Rows          *prometheus.CounterVec
	RunDuration   prometheus.Gauge
	RunTimestamp  prometheus.Gauge
}

// New registers the collectors. report labels every series with the report name.
func New(report string) *Metrics {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"report": report}

	m := &Metrics{
		Registry: reg,
		Attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "call_attempts_total",
				Help:        "Remote call attempts by operation and result",
				ConstLabels: constLabels,
			},
			[]string{"op", "result"},
		),
		Outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "call_outcomes_total",
				Help:        "Final outcome of retried calls",
				ConstLabels: constLabels,
			},
			[]string{"op", "status"},
		),
		LimiterWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "ratelimit_waits_total",
			Help:        "Times a caller had to wait for the rate limiter",
			ConstLabels: constLabels,
		}),
		LimiterWaited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "ratelimit_wait_seconds_total",
			Help:        "Total time spent waiting for the rate limiter",
			ConstLabels: constLabels,
		}),
		Rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "rows_total",
				Help:        "Report rows written by status",
				ConstLabels: constLabels,
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "run_duration_seconds",
			Help:        "Wall time of the run",
			ConstLabels: constLabels,
		}),
		RunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "run_completed_timestamp_seconds",
			Help:        "Unix time the run finished",
			ConstLabels: constLabels,
		}),
	}

	reg.MustRegister(m.Attempts, m.Outcomes, m.LimiterWaits, m.LimiterWaited,
		m.Rows, m.RunDuration, m.RunTimestamp)
	return m
}

// ObserveAttempt implements retry.Observer.
func (m *Metrics) ObserveAttempt(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Attempts.WithLabelValues(op, result).Inc()
}

// ObserveOutcome implements retry.Observer.
func (m *Metrics) ObserveOutcome(op string, status retry.Status, _ int) {
	m.Outcomes.WithLabelValues(op, status.String()).Inc()
}

// ObserveWait is passed to ratelimit.Config.OnWait.
func (m *Metrics) ObserveWait(d time.Duration) {
	m.LimiterWaits.Inc()
	m.LimiterWaited.Add(d.Seconds())
}

// ObserveRow counts a written row.
func (m *Metrics) ObserveRow(status string) {
	m.Rows.WithLabelValues(status).Inc()
}

// Finish records the run duration and completion time.
func (m *Metrics) Finish(started, now time.Time) {
	m.RunDuration.Set(now.Sub(started).Seconds())
	m.RunTimestamp.Set(float64(now.Unix()))
}

// WriteTextfile writes the registry to path for the node exporter textfile
// collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
