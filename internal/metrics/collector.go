package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "faqgate"

// Collector records engine metrics
type Collector struct {
	// Sync metrics
	syncsTotal   *prometheus.CounterVec
	syncDuration prometheus.Histogram
	indexChunks  prometheus.Gauge

	// Retrieval metrics
	retrievalsTotal   *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec

	// Answer metrics
	answersTotal       *prometheus.CounterVec
	statusUpdatesShown prometheus.Counter

	// Generation metrics
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec

	// Status cache metrics
	statusCacheSize prometheus.Gauge

	factory   promauto.Factory
	namespace string
	logger    *zap.Logger
}

// NewCollector registers the engine metrics with reg. A nil reg uses the
// default Prometheus registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		factory:   factory,
		namespace: namespace,
		logger:    logger.With(zap.String("component", "metrics")),
	}

	c.syncsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Total number of index syncs by outcome",
		},
		[]string{"outcome"}, // completed, skipped, failed
	)

	c.syncDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Index sync duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	c.indexChunks = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_chunks",
			Help:      "Number of chunks in the published snapshot",
		},
	)

	c.retrievalsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Total number of retrievals",
		},
		[]string{"mode", "cache"},
	)

	c.retrievalDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	c.answersTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Total number of questions by outcome",
		},
		[]string{"mode", "outcome"},
	)

	c.statusUpdatesShown = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_updates_shown_total",
			Help:      "Status updates appended to answers",
		},
	)

	c.generationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of answer generation calls",
		},
		[]string{"provider", "status"},
	)

	c.generationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Answer generation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	c.statusCacheSize = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status_cache_size",
			Help:      "Live status updates held for correlation",
		},
	)

	return c
}

// RecordSync records one sync attempt. chunks is the size of the snapshot
// serving afterwards and is ignored for failed syncs.
func (c *Collector) RecordSync(outcome string, chunks int, elapsed time.Duration) {
	c.syncsTotal.WithLabelValues(outcome).Inc()
	c.syncDuration.Observe(elapsed.Seconds())
	if outcome != "failed" {
		c.indexChunks.Set(float64(chunks))
	}
}

// RecordRetrieval records one retrieval
func (c *Collector) RecordRetrieval(mode string, cacheHit bool, elapsed time.Duration) {
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	c.retrievalsTotal.WithLabelValues(mode, cache).Inc()
	c.retrievalDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// RecordAnswer records the outcome of one question
func (c *Collector) RecordAnswer(mode, outcome string, statusShown int) {
	c.answersTotal.WithLabelValues(mode, outcome).Inc()
	if statusShown > 0 {
		c.statusUpdatesShown.Add(float64(statusShown))
	}
}

// RecordGeneration records one generator call
func (c *Collector) RecordGeneration(provider string, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.generationsTotal.WithLabelValues(provider, status).Inc()
	c.generationDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// SetStatusCacheSize records the live status cache size
func (c *Collector) SetStatusCacheSize(n int) {
	c.statusCacheSize.Set(float64(n))
}

// ObserveEmbeddingCache exports embedding cache counters, read from stats
// at scrape time. Call it at most once per Collector.
func (c *Collector) ObserveEmbeddingCache(stats func() (hits, misses uint64, size int)) {
	c.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: c.namespace,
		Name:      "embedding_cache_hits_total",
		Help:      "Embedding lookups served from the vector cache",
	}, func() float64 {
		hits, _, _ := stats()
		return float64(hits)
	})
	c.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: c.namespace,
		Name:      "embedding_cache_misses_total",
		Help:      "Embedding lookups that went to the provider",
	}, func() float64 {
		_, misses, _ := stats()
		return float64(misses)
	})
	c.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Name:      "embedding_cache_size",
		Help:      "Vectors held in the embedding cache",
	}, func() float64 {
		_, _, size := stats()
		return float64(size)
	})
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
