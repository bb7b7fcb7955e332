package metrics

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "storewatch_"

	resultSuccess = "success"
	resultError   = "error"
	resultSkipped = "skipped"
)

var (
	registerOnce sync.Once

	reportTotal   *prometheus.CounterVec
	reportLatency *prometheus.HistogramVec
	reportStores  *prometheus.CounterVec

	storeComputeLatency *prometheus.HistogramVec

	referenceCache *prometheus.CounterVec

	exportTotal *prometheus.CounterVec

	ingestRows *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
)

// Init registers report metrics and DB-backed gauges. It is safe to call more
// than once; only the first call registers.
func Init(db *sql.DB, logger *slog.Logger) {
	registerOnce.Do(func() {
		reportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reports_total",
				Help: "Total report runs by trigger and result",
			},
			[]string{"trigger", "result"},
		)
		reportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_duration_seconds",
				Help:    "Report generation latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"result"},
		)
		reportStores = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_stores_total",
				Help: "Stores processed by report runs by result",
			},
			[]string{"result"},
		)
		storeComputeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "store_compute_seconds",
				Help:    "Per-store uptime computation latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"result"},
		)
		referenceCache = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reference_cache_total",
				Help: "Reference timestamp lookups by outcome",
			},
			[]string{"outcome"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_exports_total",
				Help: "Report downloads by format and result",
			},
			[]string{"format", "result"},
		)
		ingestRows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_rows_total",
				Help: "Imported CSV rows by dataset and result",
			},
			[]string{"dataset", "result"},
		)
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)

		prometheus.MustRegister(
			reportTotal,
			reportLatency,
			reportStores,
			storeComputeLatency,
			referenceCache,
			exportTotal,
			ingestRows,
			httpRequests,
			httpLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveReport records a finished report run.
func ObserveReport(trigger, result string, duration time.Duration) {
	if trigger == "" {
		trigger = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportTotal != nil {
		reportTotal.WithLabelValues(trigger, result).Inc()
	}
	if reportLatency != nil {
		reportLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddReportStores adds count stores with the given result.
func AddReportStores(result string, count int) {
	if count <= 0 {
		return
	}
	if reportStores != nil {
		reportStores.WithLabelValues(result).Add(float64(count))
	}
}

// ObserveStoreCompute records one store computation.
func ObserveStoreCompute(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if storeComputeLatency != nil {
		storeComputeLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncReferenceCache counts a reference lookup ("hit", "miss" or "error").
func IncReferenceCache(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if referenceCache != nil {
		referenceCache.WithLabelValues(outcome).Inc()
	}
}

// IncExport counts a report download.
func IncExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

// AddIngestRows counts imported rows.
func AddIngestRows(dataset, result string, count int) {
	if count <= 0 {
		return
	}
	if ingestRows != nil {
		ingestRows.WithLabelValues(dataset, result).Add(float64(count))
	}
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, code int, duration time.Duration) {
	if route == "" {
		route = "other"
	}
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, route, statusText(code)).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultSkipped = resultSkipped
)
