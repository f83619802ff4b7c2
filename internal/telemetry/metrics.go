// Package telemetry exposes Prometheus collectors for the portal.
package telemetry

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the portal's collectors.
type Metrics struct {
	// Ingestion
	LoadsTotal       *prometheus.CounterVec
	LoadDuration     prometheus.Histogram
	RecordsLoaded    prometheus.Gauge
	RecordsDropped   prometheus.Counter
	LastLoadUnixTime prometheus.Gauge

	// Use cases
	SubmissionsTotal   *prometheus.CounterVec
	StatusUpdatesTotal *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	EmailsTotal        *prometheus.CounterVec

	// Track lookup cache
	TrackCacheHits   prometheus.Counter
	TrackCacheMisses prometheus.Counter

	// HTTP surface
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors with the default registry once and
// returns the shared instance on every call.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			LoadsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "portal_loads_total",
					Help: "Total number of complaint reloads by result",
				},
				[]string{"result"}, // success, no_data, busy, error
			),
			LoadDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "portal_load_duration_seconds",
					Help:    "Duration of complaint reloads in seconds",
					Buckets: prometheus.DefBuckets,
				},
			),
			RecordsLoaded: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "portal_records_loaded",
					Help: "Number of complaint records in the read model",
				},
			),
			RecordsDropped: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "portal_records_dropped_total",
					Help: "Total number of upstream rows dropped during normalization",
				},
			),
			LastLoadUnixTime: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "portal_last_load_timestamp_seconds",
					Help: "Unix time of the last successful reload",
				},
			),
			SubmissionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "portal_submissions_total",
					Help: "Total number of complaint submissions by result",
				},
				[]string{"result"},
			),
			StatusUpdatesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "portal_status_updates_total",
					Help: "Total number of admin status updates by new status and result",
				},
				[]string{"status", "result"},
			),
			NotificationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "portal_notifications_total",
					Help: "Total number of user notifications by result",
				},
				[]string{"result"},
			),
			EmailsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "portal_confirmation_emails_total",
					Help: "Total number of confirmation emails by result",
				},
				[]string{"result"},
			),
			TrackCacheHits: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "portal_track_cache_hits_total",
					Help: "Total number of track lookups served from cache",
				},
			),
			TrackCacheMisses: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "portal_track_cache_misses_total",
					Help: "Total number of track lookups sent to the sheet",
				},
			),
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "portal_http_requests_total",
					Help: "Total number of HTTP requests by route, method and status",
				},
				[]string{"route", "method", "status"},
			),
			RequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "portal_http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"route", "method"},
			),
		}
	})
	return globalMetrics
}

// Result maps an error onto the label used by the result counters.
func Result(err error) string {
	if err == nil {
		return "success"
	}
	return "error"
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
