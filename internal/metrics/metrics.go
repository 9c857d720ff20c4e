// Package metrics provides Prometheus metrics for the ingestion pipeline and
// the query API
package metrics

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dataset_importer"

// Metrics holds the importer's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ingestionsTotal    *prometheus.CounterVec
	ingestionDuration  *prometheus.HistogramVec
	ingestionsInFlight prometheus.Gauge
	stageDuration      *prometheus.HistogramVec
	imagesTotal        *prometheus.CounterVec
	labelLinesRejected prometheus.Counter
	storeOperations    *prometheus.CounterVec
	storeDuration      *prometheus.HistogramVec
	signedURLsIssued   prometheus.Counter
	dimensionLookups   *prometheus.CounterVec
	queueJobs          *prometheus.CounterVec
}

// New creates a registry with the importer's collectors plus the Go and
// process collectors
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	m := &Metrics{registry: registry}
	m.initMetrics()

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ingestionsTotal,
		m.ingestionDuration,
		m.ingestionsInFlight,
		m.stageDuration,
		m.imagesTotal,
		m.labelLinesRejected,
		m.storeOperations,
		m.storeDuration,
		m.signedURLsIssued,
		m.dimensionLookups,
		m.queueJobs,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.ingestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Finished ingestions by outcome and error kind",
		},
		[]string{"outcome", "error_kind"},
	)

	m.ingestionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_duration_seconds",
			Help:      "Wall time of an ingestion from claim to terminal stage",
			// 1s to ~68min
			Buckets: prometheus.ExponentialBuckets(1, 2, 13),
		},
		[]string{"outcome"},
	)

	m.ingestionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ingestions_in_flight",
		Help:      "Ingestions currently running",
	})

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_stage_duration_seconds",
			Help:      "Time spent in each ingestion stage",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		},
		[]string{"stage"},
	)

	m.imagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_total",
			Help:      "Images seen by the normalizer by result",
		},
		[]string{"result"}, // accepted, rejected, flagged
	)

	m.labelLinesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "label_lines_rejected_total",
		Help:      "Label lines dropped during parsing",
	})

	m.storeOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Object store operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	m.storeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Object store operation latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	m.signedURLsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signed_urls_issued_total",
		Help:      "Signed image URLs returned by the query API",
	})

	m.dimensionLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dimension_lookups_total",
			Help:      "Lazy image dimension lookups by result",
		},
		[]string{"result"}, // decoded, cached_failure, error
	)

	m.queueJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_jobs_total",
			Help:      "Queue jobs processed by type and status",
		},
		[]string{"type", "status"},
	)
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// IngestionStarted marks an ingestion as running
func (m *Metrics) IngestionStarted() {
	if m == nil {
		return
	}
	m.ingestionsInFlight.Inc()
}

// IngestionFinished records a terminal ingestion
func (m *Metrics) IngestionFinished(outcome, errorKind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ingestionsInFlight.Dec()
	m.ingestionsTotal.WithLabelValues(outcome, errorKind).Inc()
	m.ingestionDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// StageCompleted records the time spent in one stage
func (m *Metrics) StageCompleted(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordImages adds normalizer results
func (m *Metrics) RecordImages(accepted, rejected, flagged, linesRejected int) {
	if m == nil {
		return
	}
	m.imagesTotal.WithLabelValues("accepted").Add(float64(accepted))
	m.imagesTotal.WithLabelValues("rejected").Add(float64(rejected))
	m.imagesTotal.WithLabelValues("flagged").Add(float64(flagged))
	m.labelLinesRejected.Add(float64(linesRejected))
}

// RecordStoreOperation records one object store call
func (m *Metrics) RecordStoreOperation(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.storeOperations.WithLabelValues(operation, status).Inc()
	m.storeDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// SignedURLsIssued counts signed links handed out
func (m *Metrics) SignedURLsIssued(n int) {
	if m == nil {
		return
	}
	m.signedURLsIssued.Add(float64(n))
}

// DimensionLookup records a lazy dimension decode result
func (m *Metrics) DimensionLookup(result string) {
	if m == nil {
		return
	}
	m.dimensionLookups.WithLabelValues(result).Inc()
}

// QueueJob records a processed queue job
func (m *Metrics) QueueJob(jobType, status string) {
	if m == nil {
		return
	}
	m.queueJobs.WithLabelValues(jobType, status).Inc()
}
