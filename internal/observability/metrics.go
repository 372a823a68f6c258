package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qri-io/geode"
)

const namespace = "geode"

// ChunkMetrics records chunk loop activity. It satisfies geode.ChunkObserver.
type ChunkMetrics struct {
	chunks   prometheus.Counter
	elements prometheus.Counter
	duration prometheus.Histogram
}

var _ geode.ChunkObserver = (*ChunkMetrics)(nil)

// NewChunkMetrics creates the chunk instruments and registers them with reg.
func NewChunkMetrics(reg prometheus.Registerer) (*ChunkMetrics, error) {
	m := &ChunkMetrics{
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks materialized by chunk loops.",
		}),
		elements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_elements_total",
			Help:      "Elements materialized by chunk loops.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_fetch_seconds",
			Help:      "Time spent materializing one chunk.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
	}

	for _, c := range []prometheus.Collector{m.chunks, m.elements, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register chunk metrics: %w", err)
		}
	}

	return m, nil
}

// ObserveChunk implements geode.ChunkObserver.
func (m *ChunkMetrics) ObserveChunk(elements int, elapsed time.Duration) {
	m.chunks.Inc()
	m.elements.Add(float64(elements))
	m.duration.Observe(elapsed.Seconds())
}

// Handler serves the /metrics scrape endpoint for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
