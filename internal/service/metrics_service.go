package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	enrollSuccess   prometheus.Counter
	enrollRejected  *prometheus.CounterVec
	cascadeDeleted  *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	enrollSuccess := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_admitted_total",
		Help: "Total successful enrollment admissions",
	})

	enrollRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_rejected_total",
		Help: "Total enrollment attempts rejected by invariant guards",
	}, []string{"reason"})

	cascadeDeleted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_cascade_deletions_total",
		Help: "Entities removed by lifecycle cascades",
	}, []string{"entity"})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses, enrollSuccess, enrollRejected, cascadeDeleted)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		enrollSuccess:   enrollSuccess,
		enrollRejected:  enrollRejected,
		cascadeDeleted:  cascadeDeleted,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records a completed HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, fmt.Sprintf("%d", status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordCacheOperation tracks a cache lookup.
func (s *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	s.cacheLatency.Observe(duration.Seconds())
	if hit {
		s.cacheHits.Inc()
	} else {
		s.cacheMisses.Inc()
	}
}

// RecordCacheWrite tracks a cache set.
func (s *MetricsService) RecordCacheWrite(duration time.Duration) {
	s.cacheWrite.Observe(duration.Seconds())
}

// RecordAdmission counts a successful enrollment.
func (s *MetricsService) RecordAdmission() {
	s.enrollSuccess.Inc()
}

// RecordRejection counts an enrollment rejected by a guard.
func (s *MetricsService) RecordRejection(reason string) {
	s.enrollRejected.WithLabelValues(reason).Inc()
}

// RecordCascade counts entities removed or changed by a lifecycle cascade.
func (s *MetricsService) RecordCascade(entity string, count int) {
	if count <= 0 {
		return
	}
	s.cascadeDeleted.WithLabelValues(entity).Add(float64(count))
}
