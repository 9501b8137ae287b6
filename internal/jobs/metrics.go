package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for sync runs.
type Metrics struct {
	runs          *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	archivedBytes *prometheus.CounterVec
	snapshotRates *prometheus.GaugeVec
	lastSnapshot  *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddArchivedBytes counts bytes written to object storage for a job.
func (m *Metrics) AddArchivedBytes(job string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.archivedBytes.WithLabelValues(job).Add(float64(n))
}

// ObserveSnapshot records the size and timestamp of the last loaded snapshot.
func (m *Metrics) ObserveSnapshot(base string, rates int, ts time.Time) {
	if m == nil {
		return
	}
	if base == "" {
		base = "unknown"
	}
	m.snapshotRates.WithLabelValues(base).Set(float64(rates))
	m.lastSnapshot.WithLabelValues(base).Set(float64(ts.Unix()))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fxsync_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fxsync_jobs_failures_total",
		Help: "Total failures observed for sync jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fxsync_job_duration_seconds",
		Help:    "Duration in seconds of sync job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	archivedBytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fxsync_archived_bytes_total",
		Help: "Bytes of raw snapshots written to object storage.",
	}, []string{"job"})
	snapshotRates := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fxsync_snapshot_rates",
		Help: "Number of currency rates in the last loaded snapshot.",
	}, []string{"base"})
	lastSnapshot := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fxsync_snapshot_timestamp_seconds",
		Help: "Unix timestamp of the last loaded snapshot.",
	}, []string{"base"})
	registerer.MustRegister(runs, failures, duration, archivedBytes, snapshotRates, lastSnapshot)
	return &Metrics{
		runs:          runs,
		failures:      failures,
		duration:      duration,
		archivedBytes: archivedBytes,
		snapshotRates: snapshotRates,
		lastSnapshot:  lastSnapshot,
	}
}
