package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DocumentFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "em27metadata_document_fetches_total",
			Help: "Total metadata document fetches from the remote repository",
		},
		[]string{"document", "status"},
	)

	DocumentFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "em27metadata_document_fetch_latency_seconds",
			Help:    "Metadata document fetch latency in seconds, including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"document"},
	)

	DocumentFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "em27metadata_document_fallbacks_total",
			Help: "Documents served from the local archive after a failed fetch",
		},
		[]string{"document"},
	)

	ReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "em27metadata_reloads_total",
			Help: "Metadata loads by result",
		},
		[]string{"result"},
	)

	LastSuccessfulReload = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "em27metadata_last_successful_reload_timestamp_seconds",
			Help: "Unix time of the last load that produced a valid store",
		},
	)

	ValidationViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "em27metadata_validation_violations_total",
			Help: "Violations found while validating loaded documents",
		},
		[]string{"document", "rule"},
	)

	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "em27metadata_queries_total",
			Help: "Sensor context queries by endpoint and HTTP status",
		},
		[]string{"endpoint", "status"},
	)

	ContextsPerQuery = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "em27metadata_contexts_per_query",
			Help:    "Number of sensor data contexts returned per interval query",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		},
	)
)
