// Package metrics provides Prometheus metrics for the bootstrap, ingestion
// and query paths.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PipelineMetrics contains all Prometheus metrics of the pipeline.
// A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	// Bootstrap metrics
	BootstrapTotal *prometheus.CounterVec // Bootstrap invocations by observed state and outcome

	// Ingestion metrics
	IngestRunsTotal       *prometheus.CounterVec // Runs by result
	IngestRunDuration     prometheus.Histogram   // Wall time of one run
	TomogramsCreatedTotal prometheus.Counter     // New tomogram rows
	AnnotationsIngested   prometheus.Counter     // Annotation rows inserted
	DatasetRowsSkipped    *prometheus.CounterVec // Rows skipped by reason
	IngestLastSuccessTime prometheus.Gauge       // Unix time of the last successful run

	// Query metrics
	QueriesTotal    *prometheus.CounterVec   // Queries by name and result
	QueryDuration   *prometheus.HistogramVec // Query latency by name
	QueryCacheTotal *prometheus.CounterVec   // Cache lookups by result (hit, miss)

	registry *prometheus.Registry
}

// NewPipelineMetrics creates the metrics and registers them on registry.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.BootstrapTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryoet_bootstrap_total",
			Help: "Credential bootstrap invocations by observed state and outcome",
		},
		[]string{"state", "outcome"},
	)

	m.IngestRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryoet_ingest_runs_total",
			Help: "Ingestion runs by result",
		},
		[]string{"result"}, // success, failure
	)

	m.IngestRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cryoet_ingest_run_duration_seconds",
			Help:    "Wall time of one ingestion run",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
	)

	m.TomogramsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cryoet_tomograms_created_total",
			Help: "Tomogram rows created by ingestion",
		},
	)

	m.AnnotationsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cryoet_annotations_ingested_total",
			Help: "Annotation rows inserted by ingestion",
		},
	)

	m.DatasetRowsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryoet_dataset_rows_skipped_total",
			Help: "Label rows skipped by the dataset loader by reason",
		},
		[]string{"reason"}, // malformed, missing_volume
	)

	m.IngestLastSuccessTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cryoet_ingest_last_success_timestamp_seconds",
			Help: "Unix time of the last successful ingestion run",
		},
	)

	m.QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryoet_queries_total",
			Help: "Read-only queries by name and result",
		},
		[]string{"query", "result"},
	)

	m.QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cryoet_query_duration_seconds",
			Help:    "Query latency by name",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"query"},
	)

	m.QueryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryoet_query_cache_total",
			Help: "Query cache lookups by result",
		},
		[]string{"result"}, // hit, miss
	)
}

// Describe implements prometheus.Collector
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.BootstrapTotal.Describe(ch)
	m.IngestRunsTotal.Describe(ch)
	m.IngestRunDuration.Describe(ch)
	m.TomogramsCreatedTotal.Describe(ch)
	m.AnnotationsIngested.Describe(ch)
	m.DatasetRowsSkipped.Describe(ch)
	m.IngestLastSuccessTime.Describe(ch)
	m.QueriesTotal.Describe(ch)
	m.QueryDuration.Describe(ch)
	m.QueryCacheTotal.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.BootstrapTotal.Collect(ch)
	m.IngestRunsTotal.Collect(ch)
	m.IngestRunDuration.Collect(ch)
	m.TomogramsCreatedTotal.Collect(ch)
	m.AnnotationsIngested.Collect(ch)
	m.DatasetRowsSkipped.Collect(ch)
	m.IngestLastSuccessTime.Collect(ch)
	m.QueriesTotal.Collect(ch)
	m.QueryDuration.Collect(ch)
	m.QueryCacheTotal.Collect(ch)
}

// Registry returns the registry the metrics are registered on
func (m *PipelineMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordBootstrap counts one bootstrap invocation
func (m *PipelineMetrics) RecordBootstrap(state, outcome string) {
	if m == nil {
		return
	}
	m.BootstrapTotal.WithLabelValues(state, outcome).Inc()
}

// RecordIngestRun records the totals of one ingestion run
func (m *PipelineMetrics) RecordIngestRun(success bool, created int, annotations int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.IngestRunDuration.Observe(elapsed.Seconds())
	m.TomogramsCreatedTotal.Add(float64(created))
	m.AnnotationsIngested.Add(float64(annotations))
	if success {
		m.IngestRunsTotal.WithLabelValues("success").Inc()
		m.IngestLastSuccessTime.SetToCurrentTime()
		return
	}
	m.IngestRunsTotal.WithLabelValues("failure").Inc()
}

// RecordSkippedRows counts dataset rows skipped for reason
func (m *PipelineMetrics) RecordSkippedRows(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DatasetRowsSkipped.WithLabelValues(reason).Add(float64(n))
}

// RecordQuery records one query execution
func (m *PipelineMetrics) RecordQuery(query string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.QueriesTotal.WithLabelValues(query, result).Inc()
	m.QueryDuration.WithLabelValues(query).Observe(elapsed.Seconds())
}

// RecordCacheLookup counts a query cache hit or miss
func (m *PipelineMetrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.QueryCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	m.QueryCacheTotal.WithLabelValues("miss").Inc()
}

// Push sends the registry to a Prometheus Pushgateway. Batch commands
// exit before any scrape could happen, so they push instead.
func (m *PipelineMetrics) Push(ctx context.Context, gatewayURL, job string) error {
	if m == nil || gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
