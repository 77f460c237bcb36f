// Package metrics exposes Prometheus counters for sync runs, ingestion,
// reconciliation, dedupe sweeps, HTTP requests and background jobs.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alem-hub/attendance-hub/pkg/circuitbreaker"
)

const namespace = "attendance"

// Metrics implements command.Recorder and application.RunRecorder.
type Metrics struct {
	registry *prometheus.Registry

	syncRuns       *prometheus.CounterVec
	eventsInserted prometheus.Counter
	eventsRejected prometheus.Counter
	fetchFailures  *prometheus.CounterVec
	rollupsWritten prometheus.Counter
	dedupeDeleted  *prometheus.CounterVec

	breakerState *prometheus.GaugeVec
	httpRequests *prometheus.HistogramVec
	jobRuns      *prometheus.CounterVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		syncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Finished sync runs by result.",
		}, []string{"result"}),
		eventsInserted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_inserted_total",
			Help:      "Calendar events inserted by the synchronizer.",
		}),
		eventsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Upstream events rejected at ingestion.",
		}),
		fetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "School API fetches that failed and were skipped.",
		}, []string{"operation"}),
		rollupsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollups_written_total",
			Help:      "Attendance rollups saved by the reconciler.",
		}),
		dedupeDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedupe_deleted_total",
			Help:      "Duplicate rows removed by the sweeper.",
		}, []string{"collection"}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"breaker"}),
		httpRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		jobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job executions by job and result.",
		}, []string{"job", "result"}),
	}
}

// Registry returns the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ─────────────────────────────────────────────────────────────────────────────
// command.Recorder
// ─────────────────────────────────────────────────────────────────────────────

func (m *Metrics) EventsInserted(n int) {
	if n > 0 {
		m.eventsInserted.Add(float64(n))
	}
}

func (m *Metrics) EventsRejected(n int) {
	if n > 0 {
		m.eventsRejected.Add(float64(n))
	}
}

func (m *Metrics) FetchFailed(operation string) {
	m.fetchFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) RollupsWritten(n int) {
	if n > 0 {
		m.rollupsWritten.Add(float64(n))
	}
}

func (m *Metrics) DuplicatesDeleted(collection string, n int) {
	if n > 0 {
		m.dedupeDeleted.WithLabelValues(collection).Add(float64(n))
	}
}

// SyncRun implements application.RunRecorder.
func (m *Metrics) SyncRun(result string) {
	m.syncRuns.WithLabelValues(result).Inc()
}

// ─────────────────────────────────────────────────────────────────────────────
// Infrastructure hooks
// ─────────────────────────────────────────────────────────────────────────────

// BreakerStateChanged matches the school client's OnBreakerStateChange hook.
func (m *Metrics) BreakerStateChanged(name string, _, to circuitbreaker.State) {
	m.breakerState.WithLabelValues(name).Set(float64(to))
}

// ObserveHTTP records one API request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// JobRun records one scheduled job execution.
func (m *Metrics) JobRun(job string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
}
