package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/edu-enrollment-api/internal/models"
)

// MetricsService wraps the Prometheus collectors of the API and keeps cheap counters for snapshots.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheLookups    *prometheus.CounterVec
	rankDuration    prometheus.Histogram
	cohortSize      prometheus.Histogram
	uploads         *prometheus.CounterVec
	uploadBytes     prometheus.Counter
	certificates    *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	rankCount            uint64
	uploadCount          uint64
	uploadFailureCount   uint64
}

// NewMetricsService registers the collectors on a private registry.
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
		Name:    "ranking_cache_latency_seconds",
		Help:    "Latency of ranking cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ranking_cache_hit_ratio",
		Help: "Ratio of ranking cache hits to lookups",
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ranking_cache_lookups_total",
		Help: "Ranking cache lookups by result",
	}, []string{"result"})

	rankDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cohort_rank_duration_seconds",
		Help:    "Time spent computing and persisting cohort ranks",
		Buckets: prometheus.DefBuckets,
	})

	cohortSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cohort_size",
		Help:    "Number of enrollments ranked per computation",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "media_uploads_total",
		Help: "Image uploads by backend and outcome",
	}, []string{"backend", "outcome"})

	uploadBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_upload_bytes_total",
		Help: "Bytes sent to the storage backend after normalisation",
	})

	certificates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "certificates_issued_total",
		Help: "Certificates persisted by type",
	}, []string{"type"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHitRatio, cacheLookups,
		rankDuration, cohortSize, uploads, uploadBytes, certificates, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHitRatio:   cacheHitRatio,
		cacheLookups:    cacheLookups,
		rankDuration:    rankDuration,
		cohortSize:      cohortSize,
		uploads:         uploads,
		uploadBytes:     uploadBytes,
		certificates:    certificates,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a ranking cache lookup and refreshes the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveRankComputation records one cohort ranking run.
func (m *MetricsService) ObserveRankComputation(size int, duration time.Duration) {
	if m == nil {
		return
	}
	m.rankDuration.Observe(duration.Seconds())
	m.cohortSize.Observe(float64(size))
	atomic.AddUint64(&m.rankCount, 1)
}

// ObserveUpload records an upload attempt against a storage backend.
func (m *MetricsService) ObserveUpload(backend string, size int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.uploads.WithLabelValues(backend, "failure").Inc()
		atomic.AddUint64(&m.uploadFailureCount, 1)
		return
	}
	m.uploads.WithLabelValues(backend, "success").Inc()
	m.uploadBytes.Add(float64(size))
	atomic.AddUint64(&m.uploadCount, 1)
}

// ObserveCertificates counts persisted certificates by type.
func (m *MetricsService) ObserveCertificates(certs ...*models.Certificate) {
	if m == nil {
		return
	}
	for _, cert := range certs {
		m.certificates.WithLabelValues(string(cert.Status.Type)).Inc()
	}
}

// Snapshot returns aggregated counters for the metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		RankComputations:         atomic.LoadUint64(&m.rankCount),
		Uploads:                  atomic.LoadUint64(&m.uploadCount),
		UploadFailures:           atomic.LoadUint64(&m.uploadFailureCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
