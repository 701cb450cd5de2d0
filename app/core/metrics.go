package core

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quka-ai/kbcore/pkg/metrics"
)

type Metrics struct {
	apiResponseTime   *prometheus.HistogramVec
	apiErrorCounter   *prometheus.CounterVec
	ingestDuration    *prometheus.HistogramVec
	ingestChunks      *prometheus.CounterVec
	embeddingBatches  *prometheus.CounterVec
	searchFailures    *prometheus.CounterVec
	searchDuration    *prometheus.HistogramVec
	rerankFallbacks   *prometheus.CounterVec
	monitorChecks     *prometheus.CounterVec
	queryCacheLookups *prometheus.CounterVec
}

func NewMetrics(ns, system string) *Metrics {
	// setup metric
	metrics.SetupMetricsManager(ns, system, prometheus.DefaultRegisterer.(*prometheus.Registry))

	m := &Metrics{
		apiResponseTime:   metrics.NewHistogramVec("api_response_time", []string{"api"}),
		apiErrorCounter:   metrics.NewCounterVec("api_error", []string{"method", "api", "status"}),
		ingestDuration:    metrics.NewHistogramVec("ingest_duration", []string{"kind", "result"}),
		ingestChunks:      metrics.NewCounterVec("ingest_chunks", []string{"kind"}),
		embeddingBatches:  metrics.NewCounterVec("embedding_batches", []string{"outcome"}),
		searchFailures:    metrics.NewCounterVec("search_signal_failures", []string{"signal"}),
		searchDuration:    metrics.NewHistogramVec("search_duration", nil),
		rerankFallbacks:   metrics.NewCounterVec("rerank_fallbacks", nil),
		monitorChecks:     metrics.NewCounterVec("monitor_checks", []string{"status"}),
		queryCacheLookups: metrics.NewCounterVec("query_cache_lookups", []string{"result"}),
	}

	return m
}

func (m *Metrics) ApiErrorInc(method, api string, status int) {
	m.apiErrorCounter.WithLabelValues(method, api, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ApiResponseTimer(api string) *prometheus.Timer {
	return prometheus.NewTimer(m.apiResponseTime.WithLabelValues(api))
}

// IngestTimer returns a func that records the duration with the final result.
func (m *Metrics) IngestTimer(kind string) func(result string) {
	begin := time.Now()
	return func(result string) {
		m.ingestDuration.WithLabelValues(kind, result).Observe(time.Since(begin).Seconds())
	}
}

func (m *Metrics) IngestChunksAdd(kind string, n int) {
	m.ingestChunks.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) EmbeddingBatchInc(outcome string) {
	m.embeddingBatches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SearchFailureInc(signal string) {
	m.searchFailures.WithLabelValues(signal).Inc()
}

func (m *Metrics) SearchTimer() *prometheus.Timer {
	return prometheus.NewTimer(m.searchDuration.WithLabelValues())
}

func (m *Metrics) RerankFallbackInc() {
	m.rerankFallbacks.WithLabelValues().Inc()
}

func (m *Metrics) MonitorCheckInc(status string) {
	m.monitorChecks.WithLabelValues(status).Inc()
}

func (m *Metrics) QueryCacheInc(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.queryCacheLookups.WithLabelValues(result).Inc()
}
