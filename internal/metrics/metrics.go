package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "artifact_review"

	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

var (
	// Ingestion jobs by outcome
	IngestJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "jobs_total",
			Help:      "Archive ingestion jobs by outcome",
		},
		[]string{"status"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Archive ingestion duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	ExtractedFilesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "extracted_files_total",
			Help:      "Files extracted from archives",
		},
	)

	ExtractedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "extracted_bytes_total",
			Help:      "Bytes extracted from archives",
		},
	)

	// Blob store operations
	BlobOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blob",
			Name:      "operations_total",
			Help:      "Blob store operations",
		},
		[]string{"driver", "operation", "status"},
	)

	BlobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "blob",
			Name:      "duration_seconds",
			Help:      "Blob store operation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"driver", "operation"},
	)

	SweptVersionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "items_total",
			Help:      "Items reconciled by the background sweep",
		},
		[]string{"kind"},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

// RecordIngest records the outcome of one ingestion job
func RecordIngest(status string, started time.Time) {
	IngestJobsTotal.WithLabelValues(status).Inc()
	if status != StatusSkipped {
		IngestDuration.Observe(time.Since(started).Seconds())
	}
}

func RecordExtracted(size int64) {
	ExtractedFilesTotal.Inc()
	ExtractedBytesTotal.Add(float64(size))
}

// RecordBlobOperation records a blob store call and its latency
func RecordBlobOperation(driver, operation string, err error, started time.Time) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailed
	}
	BlobOperationsTotal.WithLabelValues(driver, operation, status).Inc()
	BlobDuration.WithLabelValues(driver, operation).Observe(time.Since(started).Seconds())
}

func RecordSweep(kind string, n int) {
	SweptVersionsTotal.WithLabelValues(kind).Add(float64(n))
}

func RecordRequest(method, route, status string) {
	RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
