// Package metrics exposes the Prometheus registry shared by the offline layer.
// All metrics are defined in their respective packages (cache, lifecycle,
// intercept, ...) and registered via promauto, which keeps the packages free
// of a common metrics dependency.
//
// This package provides the scrape handler and documents every metric.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the offline layer.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(Registry, promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - paradigm_cache_hits_total{partition} (Counter): Hits by partition name
//   - paradigm_cache_misses_total (Counter): Misses across all partitions
//   - paradigm_cache_errors_total{operation} (Counter): Storage faults (get, put, delete, names, keys)
//   - paradigm_cache_partitions_deleted_total (Counter): Partitions dropped wholesale
//
// Lifecycle Metrics (pkg/lifecycle):
//   - paradigm_lifecycle_installs_total{outcome} (Counter): Install attempts (ok, failed)
//   - paradigm_lifecycle_install_duration_seconds (Histogram): Precache duration
//   - paradigm_lifecycle_stale_partitions_total{outcome} (Counter): Stale partitions handled during activation (deleted, failed)
//
// Interceptor Metrics (pkg/intercept):
//   - paradigm_intercept_requests_total{route, outcome} (Counter): Requests by route and outcome (network, cache, fallback, error)
//   - paradigm_intercept_request_duration_seconds{route} (Histogram): Handling duration by route
//   - paradigm_intercept_network_errors_total{class} (Counter): Failed fetches (client, server, network)
//   - paradigm_intercept_store_failures_total{operation} (Counter): Swallowed partition faults
//
// Connectivity Metrics (pkg/connectivity):
//   - paradigm_connectivity_online (Gauge): 1 online, 0 offline
//   - paradigm_connectivity_outages_total (Counter): Online to offline transitions
//   - paradigm_connectivity_recoveries_total (Counter): Offline to online transitions
//
// Sync Metrics (pkg/syncqueue, pkg/attendance):
//   - paradigm_sync_requests_total{tag} (Counter): Sync requests registered
//   - paradigm_sync_dispatch_total{tag, outcome} (Counter): Dispatches (ok, failed; tag "unknown" for unregistered tags)
//   - paradigm_sync_duration_seconds{tag} (Histogram): Sync routine duration
//   - paradigm_attendance_flushed_total (Counter): Attendance records acknowledged by the origin
//
// Notification Metrics (pkg/notify):
//   - paradigm_notify_push_total{outcome} (Counter): Push events handled (shown, failed)
//   - paradigm_notify_clicks_total{outcome} (Counter): Notification clicks handled (opened, failed)
//
// Install Retry Metrics (pkg/worker):
//   - paradigm_worker_install_retries_total{error_class} (Counter): Install retries by error class
//   - paradigm_worker_install_backoff_seconds{error_class} (Histogram): Backoff before each retry
//   - paradigm_worker_install_retry_exhausted_total{error_class} (Counter): Installs that ran out of attempts
//
// Example Prometheus Queries:
//
//   # Offline hit rate for the runtime partition
//   sum(rate(paradigm_cache_hits_total{partition=~"runtime-.*"}[5m])) /
//   sum(rate(paradigm_intercept_requests_total{route="network-first"}[5m]))
//
//   # Devices currently offline
//   count(paradigm_connectivity_online == 0)
//
//   # Failing attendance syncs
//   rate(paradigm_sync_dispatch_total{tag="sync-attendance", outcome="failed"}[15m]) > 0
//
//   # P95 precache duration
//   histogram_quantile(0.95, rate(paradigm_lifecycle_install_duration_seconds_bucket[1h]))
