/*
Package metrics defines and registers the request processor's
Prometheus metrics, and exposes a liveness/readiness surface alongside
them.

Metrics are updated inline from pkg/processor's worker goroutine at
the point each value changes, not polled by a separate collector: the
worker already owns queue depth, flush timing, dispatch outcomes, and
host state, so it sets the corresponding gauge/counter/histogram
itself rather than handing a second goroutine the job of reading state
across a memory boundary.

# Metrics

	meridian_queue_depth                     gauge
	meridian_flush_cycles_total              counter
	meridian_flushed_requests_total          counter
	meridian_flush_duration_seconds          histogram
	meridian_dispatch_total{code}            counter
	meridian_dispatch_duration_seconds{code} histogram
	meridian_hosts_total{state}              gauge
	meridian_prepare_all_total               counter
	meridian_schema_agreement_total{outcome} counter

# Usage

	http.Handle("/metrics", metrics.Handler())
	http.Handle("/health", metrics.HealthHandler())
	http.Handle("/ready", metrics.ReadyHandler())
	http.Handle("/live", metrics.LivenessHandler())

	timer := metrics.NewTimer()
	// ... drain a flush cycle ...
	timer.ObserveDuration(metrics.FlushDuration)
*/
package metrics
