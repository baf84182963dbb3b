package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestDuration tracks request duration in seconds
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// requestTotal tracks total number of requests
	requestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// eventsRecorded tracks events accepted by the write path
	eventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_events_recorded_total",
			Help: "Total number of analytics events recorded",
		},
		[]string{"category"},
	)

	// exportRuns tracks CSV export requests by outcome
	exportRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_exports_total",
			Help: "Total number of CSV export runs",
		},
		[]string{"outcome"},
	)
)

// MetricsMiddleware collects metrics for HTTP requests
type MetricsMiddleware struct{}

// NewMetricsMiddleware creates a new metrics middleware
func NewMetricsMiddleware() *MetricsMiddleware {
	return &MetricsMiddleware{}
}

// CollectMetrics collects metrics for HTTP requests
func (m *MetricsMiddleware) CollectMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		requestDuration.WithLabelValues(method, path, status).Observe(duration)
		requestTotal.WithLabelValues(method, path, status).Inc()
	}
}

// CountEventRecorded increments the recorded-events counter.
func CountEventRecorded(category string) {
	eventsRecorded.WithLabelValues(category).Inc()
}

// CountExportRun increments the export counter with its outcome.
func CountExportRun(outcome string) {
	exportRuns.WithLabelValues(outcome).Inc()
}
