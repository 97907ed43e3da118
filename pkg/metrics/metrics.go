// Package metrics exposes the Prometheus metrics of the client. Metrics are
// defined in the packages that record them (client, pagination, stream,
// cache, ratelimit) and registered through promauto on the default
// registry; this package serves them and documents the catalogue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package's metrics are added to.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer Handler serves from.
var Gatherer = prometheus.DefaultGatherer

// Handler returns an HTTP handler serving every registered metric.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - fedi_requests_total{route, status} (Counter)
//   - fedi_request_duration_seconds{route} (Histogram)
//   - fedi_errors_total{class} (Counter): client, server, rate_limit, network
//   - fedi_retries_total{error_class} (Counter)
//   - fedi_retry_backoff_seconds{error_class} (Histogram)
//   - fedi_retry_exhausted_total{error_class} (Counter)
//
// Pagination Metrics (pkg/pagination):
//   - fedi_pages_fetched_total{direction} (Counter)
//   - fedi_page_items_total{direction} (Counter)
//   - fedi_empty_pages_total (Counter)
//   - fedi_page_errors_total{direction} (Counter)
//
// Stream Metrics (pkg/stream):
//   - fedi_stream_frames_total{outcome} (Counter): decoded, skipped, failed
//   - fedi_stream_events_total{event} (Counter)
//   - fedi_stream_read_errors_total (Counter)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - fedi_rate_limit_remaining{instance} (Gauge)
//   - fedi_rate_limit_blocks_total (Counter)
//   - fedi_rate_limit_throttles_total (Counter)
//
// Cache Metrics (pkg/cache):
//   - fedi_cache_hits_total{layer="redis"} (Counter)
//   - fedi_cache_misses_total (Counter)
//   - fedi_cache_size_bytes{layer="redis"} (Gauge)
//   - fedi_cache_conditional_requests_total (Counter)
//   - fedi_cache_not_modified_total (Counter)
//   - fedi_cache_errors_total{operation} (Counter)
//
// Example Prometheus Queries:
//
//	# Share of stream frames that failed to decode
//	sum(rate(fedi_stream_frames_total{outcome="failed"}[5m])) /
//	sum(rate(fedi_stream_frames_total{outcome!="skipped"}[5m]))
//
//	# Budget running low
//	fedi_rate_limit_remaining < 30
//
//	# P95 request latency per route
//	histogram_quantile(0.95, sum by (route, le) (rate(fedi_request_duration_seconds_bucket[5m])))
