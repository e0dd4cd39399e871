package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the certificate domain.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	certificatesIssued prometheus.Counter
	verifications      *prometheus.CounterVec
	renderDuration     prometheus.Histogram
	courseCompletions  prometheus.Counter
	batchesProcessed   *prometheus.CounterVec
}

// NewMetricsService registers all collectors on a private registry.
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

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	certificatesIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "certificates_issued_total",
		Help: "Total certificate ids minted",
	})

	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "certificate_verifications_total",
		Help: "Total public verification lookups by source",
	}, []string{"source"})

	renderDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "certificate_render_duration_seconds",
		Help:    "Time spent rendering certificate documents",
		Buckets: prometheus.DefBuckets,
	})

	courseCompletions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "course_completions_total",
		Help: "Total course completion transitions",
	})

	batchesProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "certificate_batches_total",
		Help: "Total issuance batches by terminal status",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses,
		certificatesIssued, verifications, renderDuration, courseCompletions, batchesProcessed, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		certificatesIssued: certificatesIssued,
		verifications:      verifications,
		renderDuration:     renderDuration,
		courseCompletions:  courseCompletions,
		batchesProcessed:   batchesProcessed,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records per-route request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation counts cache hits and misses.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// CertificateIssued counts a freshly minted certificate id.
func (m *MetricsService) CertificateIssued() {
	if m == nil {
		return
	}
	m.certificatesIssued.Inc()
}

// CertificateVerified counts a public verification lookup.
func (m *MetricsService) CertificateVerified(cacheHit bool) {
	if m == nil {
		return
	}
	source := "db"
	if cacheHit {
		source = "cache"
	}
	m.verifications.WithLabelValues(source).Inc()
	m.RecordCacheOperation(cacheHit)
}

// ObserveRenderDuration records one document render.
func (m *MetricsService) ObserveRenderDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.Observe(duration.Seconds())
}

// CourseCompleted counts a completion transition.
func (m *MetricsService) CourseCompleted() {
	if m == nil {
		return
	}
	m.courseCompletions.Inc()
}

// BatchProcessed counts a batch reaching a terminal status.
func (m *MetricsService) BatchProcessed(status string) {
	if m == nil {
		return
	}
	m.batchesProcessed.WithLabelValues(status).Inc()
}
