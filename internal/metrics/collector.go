// Package metrics provides internal metrics collection for the
// retrieval core. This package is internal and should not be imported
// by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 检索指标收集器
// =============================================================================

// RetrievalCollector 检索指标收集器，由融合引擎持有。
type RetrievalCollector struct {
	// 检索指标
	retrievalsTotal   *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec
	resultsReturned   *prometheus.HistogramVec

	// 通道降级指标
	channelDegradations *prometheus.CounterVec

	// 嵌入指标
	embeddingRequests *prometheus.CounterVec
	embeddingDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewRetrievalCollector 创建检索指标收集器。
// reg 为 nil 时使用 prometheus.DefaultRegisterer。
func NewRetrievalCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *RetrievalCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &RetrievalCollector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.retrievalsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Total number of retrieve calls",
		},
		[]string{"mode", "outcome"},
	)

	c.retrievalDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieve call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	c.resultsReturned = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_results",
			Help:      "Number of results returned per retrieve call",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"mode"},
	)

	c.channelDegradations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_degradations_total",
			Help:      "Searches degraded to empty results because a channel was unavailable",
		},
		[]string{"channel"},
	)

	c.embeddingRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding provider calls",
		},
		[]string{"provider", "outcome"},
	)

	c.embeddingDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_duration_seconds",
			Help:      "Embedding call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	c.logger.Info("retrieval metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordRetrieval 记录一次检索调用。
func (c *RetrievalCollector) RecordRetrieval(mode, outcome string, results int, duration time.Duration) {
	c.retrievalsTotal.WithLabelValues(mode, outcome).Inc()
	c.retrievalDuration.WithLabelValues(mode).Observe(duration.Seconds())
	c.resultsReturned.WithLabelValues(mode).Observe(float64(results))
}

// RecordChannelDegradation 记录一次通道降级。
func (c *RetrievalCollector) RecordChannelDegradation(channel string) {
	c.channelDegradations.WithLabelValues(channel).Inc()
}

// RecordEmbedding 记录一次嵌入调用。
func (c *RetrievalCollector) RecordEmbedding(provider, outcome string, duration time.Duration) {
	c.embeddingRequests.WithLabelValues(provider, outcome).Inc()
	c.embeddingDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// =============================================================================
// 💾 缓存指标收集器
// =============================================================================

// CacheCollector 缓存命中/未命中指标，独立注册以避免与
// RetrievalCollector 在同一 Registerer 上冲突。
type CacheCollector struct {
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
}

// NewCacheCollector 创建缓存指标收集器。
func NewCacheCollector(namespace string, reg prometheus.Registerer) *CacheCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &CacheCollector{
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),
	}
}

// RecordHit 记录缓存命中。
func (c *CacheCollector) RecordHit(cache string) {
	c.cacheHits.WithLabelValues(cache).Inc()
}

// RecordMiss 记录缓存未命中。
func (c *CacheCollector) RecordMiss(cache string) {
	c.cacheMisses.WithLabelValues(cache).Inc()
}
