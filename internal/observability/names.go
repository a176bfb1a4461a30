// Package observability provides OpenTelemetry metrics (Prometheus exporter)
// and log enrichment for the hub API.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameRequestDuration    = "hub_http_request_duration_seconds"
	MetricNameEmbeddingItems     = "hub_embedding_items_total"
	MetricNameEmbeddingErrors    = "hub_embedding_item_errors_total"
	MetricNameEmbeddingJobs      = "hub_embedding_jobs_enqueued_total"
	MetricNameEmbeddingJobStatus = "hub_embedding_job_outcomes_total"
	MetricNameJobDuration        = "hub_embedding_job_duration_seconds"
	MetricNameSearchDuration     = "hub_search_duration_seconds"
	MetricNameSearchHits         = "hub_search_hits_total"
)

// Attribute keys.
const (
	AttrStatus  = "status"
	AttrVariant = "variant"
	AttrMethod  = "method"
	AttrRoute   = "route"
)
