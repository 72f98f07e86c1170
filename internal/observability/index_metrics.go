package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// IndexMetrics tracks health of the exhibition index and its ingestion path.
type IndexMetrics struct {
	embedCacheHits   prometheus.Counter
	embedCacheMisses prometheus.Counter
	chunksIndexed    prometheus.Counter
	documentsSkipped prometheus.CounterVec
	queryFallbacks   prometheus.Counter
	collectionSize   prometheus.Gauge
}

var (
	defaultIndexMetrics     *IndexMetrics
	defaultIndexMetricsOnce sync.Once
)

// NewIndexMetrics builds an IndexMetrics recorder using the default registry.
func NewIndexMetrics() *IndexMetrics {
	defaultIndexMetricsOnce.Do(func() {
		defaultIndexMetrics = newIndexMetrics(prometheus.DefaultRegisterer)
	})
	return defaultIndexMetrics
}

// NewIndexMetricsWithRegisterer allows tests to provide a dedicated registry.
func NewIndexMetricsWithRegisterer(reg prometheus.Registerer) *IndexMetrics {
	return newIndexMetrics(reg)
}

func newIndexMetrics(reg prometheus.Registerer) *IndexMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &IndexMetrics{
		embedCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "muza",
			Subsystem: "index",
			Name:      "embed_cache_hit_total",
			Help:      "Number of embedding requests served from the in-memory cache",
		}),
		embedCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "muza",
			Subsystem: "index",
			Name:      "embed_cache_miss_total",
			Help:      "Number of embedding requests that reached the embedding service",
		}),
		chunksIndexed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "muza",
			Subsystem: "index",
			Name:      "chunks_indexed_total",
			Help:      "Total description chunks written to the vector store",
		}),
		documentsSkipped: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "muza",
			Subsystem: "index",
			Name:      "documents_skipped_total",
			Help:      "Exhibitions skipped during ingestion by reason",
		}, []string{"reason"}),
		queryFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "muza",
			Subsystem: "index",
			Name:      "query_fallback_total",
			Help:      "Number of broadened fallback queries issued after an empty filtered result",
		}),
		collectionSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "muza",
			Subsystem: "index",
			Name:      "collection_size",
			Help:      "Documents currently held by the exhibition collection",
		}),
	}
}

// RecordEmbedCache tracks whether an embedding was served from cache.
func (m *IndexMetrics) RecordEmbedCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		if m.embedCacheHits != nil {
			m.embedCacheHits.Inc()
		}
		return
	}
	if m.embedCacheMisses != nil {
		m.embedCacheMisses.Inc()
	}
}

// RecordChunksIndexed adds to the indexed chunk counter.
func (m *IndexMetrics) RecordChunksIndexed(count int) {
	if m == nil || m.chunksIndexed == nil {
		return
	}
	m.chunksIndexed.Add(float64(count))
}

// RecordDocumentSkipped increments the skip counter for a reason (expired, malformed).
func (m *IndexMetrics) RecordDocumentSkipped(reason string) {
	if m == nil {
		return
	}
	counter := m.documentsSkipped.WithLabelValues(reason)
	counter.Inc()
}

// RecordQueryFallback increments the broadened-query counter.
func (m *IndexMetrics) RecordQueryFallback() {
	if m == nil || m.queryFallbacks == nil {
		return
	}
	m.queryFallbacks.Inc()
}

// RecordCollectionSize sets the current collection document count.
func (m *IndexMetrics) RecordCollectionSize(count int) {
	if m == nil || m.collectionSize == nil {
		return
	}
	m.collectionSize.Set(float64(count))
}
