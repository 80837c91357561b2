// Package metrics exposes the request processor's Prometheus metrics:
// queue depth, flush-cycle pacing, dispatch outcomes, host-state
// counts, and the post-response orchestration paths (prepare-all,
// schema agreement). Metrics are package-level prometheus.NewGauge/
// Counter/Histogram vars registered from init(), with a Timer helper
// for histogram observations and Handler() wrapping promhttp.Handler()
// for an HTTP /metrics endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueDepth is the number of requests waiting to be dispatched,
	// sampled at the start of each flush cycle.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meridian_queue_depth",
			Help: "Requests waiting in the processor's queue at the start of the most recent flush cycle",
		},
	)

	// FlushCyclesTotal counts completed flush cycles.
	FlushCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meridian_flush_cycles_total",
			Help: "Total number of flush cycles the processor has run",
		},
	)

	// FlushedRequestsTotal counts requests dispatched across all flush cycles.
	FlushedRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meridian_flushed_requests_total",
			Help: "Total number of requests dispatched out of the queue",
		},
	)

	// FlushDuration times how long each flush cycle takes to drain its
	// observed backlog, the input to the 90/10 pacing formula.
	FlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meridian_flush_duration_seconds",
			Help:    "Time spent draining one flush cycle's observed backlog",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DispatchTotal counts dispatch outcomes by error code ("none" for success).
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_dispatch_total",
			Help: "Total number of requests dispatched, by resulting error code",
		},
		[]string{"code"},
	)

	// DispatchDuration times a single dispatch call, by resulting error code.
	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meridian_dispatch_duration_seconds",
			Help:    "Time spent resolving a profile and handing a request off to its handler, by resulting error code",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"code"},
	)

	// HostsTotal is the number of known hosts by lifecycle state.
	HostsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meridian_hosts_total",
			Help: "Total number of known hosts by state",
		},
		[]string{"state"},
	)

	// PrepareAllTotal counts prepare-on-all-hosts fan-outs started.
	PrepareAllTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meridian_prepare_all_total",
			Help: "Total number of prepare-on-all-hosts fan-outs started",
		},
	)

	// SchemaAgreementTotal counts schema-agreement wait outcomes by
	// whether they timed out.
	SchemaAgreementTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_schema_agreement_total",
			Help: "Total number of schema-agreement waits, by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		QueueDepth,
		FlushCyclesTotal,
		FlushedRequestsTotal,
		FlushDuration,
		DispatchTotal,
		DispatchDuration,
		HostsTotal,
		PrepareAllTotal,
		SchemaAgreementTotal,
	)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an operation and reports its duration to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to histogramVec under
// the given label values.
func (t *Timer) ObserveDurationVec(histogramVec *prometheus.HistogramVec, labelValues ...string) {
	histogramVec.WithLabelValues(labelValues...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
