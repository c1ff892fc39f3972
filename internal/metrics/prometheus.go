package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "doa_recorder"

// Metrics contains all Prometheus metrics for the recorder
type Metrics struct {
	registry *prometheus.Registry

	// Capture metrics
	ChunksRead     prometheus.Counter
	ChunkOverflows prometheus.Counter
	DOAUnavailable prometheus.Counter

	// Segment metrics
	SegmentsFinalized  *prometheus.CounterVec
	SegmentsDiscarded  prometheus.Counter
	SegmentsWritten    prometheus.Counter
	SegmentWriteErrors prometheus.Counter
	SegmentDuration    prometheus.Histogram

	QueueDepth   *prometheus.GaugeVec
	QueueDropped *prometheus.CounterVec
}

// New creates all metrics on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ChunksRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_read_total",
			Help:      "Total number of audio chunks read from the capture stream",
		}),
		ChunkOverflows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_overflows_total",
			Help:      "Total number of reads that reported an input overflow",
		}),
		DOAUnavailable: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "doa_unavailable_total",
			Help:      "Total number of chunks without a DOA reading",
		}),

		SegmentsFinalized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_finalized_total",
			Help:      "Total number of finalized segments by segmentation policy",
		}, []string{"policy"}),
		SegmentsDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_discarded_total",
			Help:      "Total number of in-progress segments dropped at shutdown",
		}),
		SegmentsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_written_total",
			Help:      "Total number of segments persisted",
		}),
		SegmentWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_write_errors_total",
			Help:      "Total number of segments that failed to persist",
		}),
		SegmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_duration_seconds",
			Help:      "Audio duration of persisted segments",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 10, 20, 30},
		}),

		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Items waiting in each pipeline queue",
		}, []string{"queue"}),
		QueueDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_dropped_total",
			Help:      "Items the capture stage gave up on because shutdown began while a queue was full",
		}, []string{"queue"}),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
