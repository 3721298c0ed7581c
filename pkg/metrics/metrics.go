// Package metrics provides the centralized Prometheus registry reference for
// the pipeline. All metrics are defined in their respective packages
// (tmdb, ratelimit, index, cache, ingest) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the pipeline.
// All metrics are automatically registered via promauto in their respective
// packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - tmdb_rate_limit_waits_total (Counter): Requests that waited for the window
//   - tmdb_rate_limit_wait_seconds (Histogram): Time spent waiting for the window
//
// Request Metrics (pkg/tmdb):
//   - tmdb_requests_total{status} (Counter): Requests by HTTP status
//   - tmdb_request_duration_seconds (Histogram): Lookup duration incl. retries
//   - tmdb_retries_total (Counter): Retry attempts after 429 responses
//   - tmdb_retry_exhausted_total (Counter): Lookups abandoned after the schedule
//
// Index Metrics (pkg/index):
//   - index_listings_total (Counter): Tree listing fetches
//   - index_token_resolutions_total{result} (Counter): Resolutions by result (ok, memo, skipped)
//   - index_memo_hits_total (Counter): Resolutions served from redis
//   - index_memo_misses_total (Counter): Memo lookups that fell through
//   - index_memo_errors_total{operation} (Counter): Memo operation errors
//
// Cache Metrics (pkg/cache):
//   - cache_writes_total (Counter): Records written to the file cache
//
// Ingestion Metrics (pkg/ingest):
//   - ingest_processed_total (Counter): Work units processed
//   - ingest_cached_total (Counter): Units that produced a cache write
//   - ingest_skipped_total (Counter): Units with no upstream record
//   - ingest_runs_total{result} (Counter): Runs by result (drained, timeout, error)
//
// Example Prometheus Queries:
//
//   # Skip Rate
//   rate(ingest_skipped_total[5m]) / rate(ingest_processed_total[5m])
//
//   # Memo Hit Rate
//   rate(index_memo_hits_total[5m]) /
//   (rate(index_memo_hits_total[5m]) + rate(index_memo_misses_total[5m]))
//
//   # Time Lost to Rate Limiting
//   rate(tmdb_rate_limit_wait_seconds_sum[5m])
//
//   # P95 Lookup Latency
//   histogram_quantile(0.95, rate(tmdb_request_duration_seconds_bucket[5m]))
