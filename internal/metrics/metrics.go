// Package metrics exposes backup and snapshot counters through Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the instrumentation surface used by the pipeline, the snapshot
// manager and the backup runner.
type Metrics interface {
	IncEntries(kind string)
	AddBytes(n int64)
	IncSnapshotOp(op, status string)
	ObserveRun(mode, status string, durationSeconds float64)
}

// Entry kinds and statuses used as label values.
const (
	KindFile      = "file"
	KindDirectory = "directory"

	StatusOK       = "ok"
	StatusError    = "error"
	StatusCanceled = "canceled"
)

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncEntries(string)                  {}
func (Noop) AddBytes(int64)                     {}
func (Noop) IncSnapshotOp(string, string)       {}
func (Noop) ObserveRun(string, string, float64) {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	entries     *prometheus.CounterVec
	bytes       prometheus.Counter
	snapshotOps *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
}

// NewProm creates the collectors and registers them with reg.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	p := &Prom{
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_entries_total",
			Help:      "Entries written to archives by kind",
		}, []string{"kind"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_bytes_total",
			Help:      "File content bytes read from the source and written to archives",
		}),
		snapshotOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_operations_total",
			Help:      "Managed snapshot operations by operation and status",
		}, []string{"op", "status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Backup and snapshot runs by mode and status",
		}, []string{"mode", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Run duration by mode",
			Buckets:   []float64{1, 5, 30, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"mode"}),
	}
	reg.MustRegister(p.entries, p.bytes, p.snapshotOps, p.runs, p.runDuration)
	return p
}

func (p *Prom) IncEntries(kind string) {
	p.entries.WithLabelValues(kind).Inc()
}

func (p *Prom) AddBytes(n int64) {
	if n > 0 {
		p.bytes.Add(float64(n))
	}
}

func (p *Prom) IncSnapshotOp(op, status string) {
	p.snapshotOps.WithLabelValues(op, status).Inc()
}

func (p *Prom) ObserveRun(mode, status string, durationSeconds float64) {
	p.runs.WithLabelValues(mode, status).Inc()
	p.runDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// Handler returns an HTTP handler for /metrics serving the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Status maps an operation error to a status label.
func Status(err error, canceled bool) string {
	switch {
	case err == nil:
		return StatusOK
	case canceled:
		return StatusCanceled
	default:
		return StatusError
	}
}
