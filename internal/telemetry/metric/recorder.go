package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every TabVault metric.
const Namespace = "tabvault"

// Recorder holds the engine metrics. All methods are nil-safe.
type Recorder struct {
	sessionSaves     prometheus.Counter
	sessionDeletes   prometheus.Counter
	sessionEvictions prometheus.Counter
	indexPrunes      prometheus.Counter

	datasetSaves  *prometheus.CounterVec
	chunksWritten prometheus.Counter
	chunksRead    prometheus.Counter
	chunksSkipped *prometheus.CounterVec

	restores        *prometheus.CounterVec
	restoreDuration prometheus.Histogram

	payloadBytes *prometheus.HistogramVec
}

// NewRecorder creates a Recorder and registers its collectors.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		sessionSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "saves_total",
			Help:      "Session record writes, create and update combined.",
		}),
		sessionDeletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "deletes_total",
			Help:      "Session deletions, explicit and eviction-driven.",
		}),
		sessionEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "evictions_total",
			Help:      "Sessions removed by capacity eviction.",
		}),
		indexPrunes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "index_prunes_total",
			Help:      "Dangling index entries dropped during listing.",
		}),
		datasetSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "dataset",
			Name:      "saves_total",
			Help:      "Dataset saves by storage mode.",
		}, []string{"mode"}),
		chunksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "dataset",
			Name:      "chunks_written_total",
			Help:      "Dataset chunks written to the blob store.",
		}),
		chunksRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "dataset",
			Name:      "chunks_read_total",
			Help:      "Dataset chunks read during restores.",
		}),
		chunksSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "dataset",
			Name:      "chunks_skipped_total",
			Help:      "Dataset chunks skipped during restores, by reason.",
		}, []string{"reason"}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "restore",
			Name:      "total",
			Help:      "Completed restore attempts by outcome.",
		}, []string{"outcome"}),
		restoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "restore",
			Name:      "duration_seconds",
			Help:      "Wall time of restore attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		payloadBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "storage",
			Name:      "payload_bytes",
			Help:      "Stored payload sizes by blob kind.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"kind"}),
	}

	reg.MustRegister(
		r.sessionSaves,
		r.sessionDeletes,
		r.sessionEvictions,
		r.indexPrunes,
		r.datasetSaves,
		r.chunksWritten,
		r.chunksRead,
		r.chunksSkipped,
		r.restores,
		r.restoreDuration,
		r.payloadBytes,
	)
	return r
}

// Handler serves the gathered metrics in Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (r *Recorder) SessionSaved() {
	if r == nil {
		return
	}
	r.sessionSaves.Inc()
}

func (r *Recorder) SessionDeleted() {
	if r == nil {
		return
	}
	r.sessionDeletes.Inc()
}

func (r *Recorder) SessionEvicted() {
	if r == nil {
		return
	}
	r.sessionEvictions.Inc()
}

func (r *Recorder) IndexEntryPruned() {
	if r == nil {
		return
	}
	r.indexPrunes.Inc()
}

// DatasetSaved records a dataset save; mode is "single" or "chunked".
func (r *Recorder) DatasetSaved(mode string) {
	if r == nil {
		return
	}
	r.datasetSaves.WithLabelValues(mode).Inc()
}

func (r *Recorder) ChunkWritten() {
	if r == nil {
		return
	}
	r.chunksWritten.Inc()
}

func (r *Recorder) ChunkRead() {
	if r == nil {
		return
	}
	r.chunksRead.Inc()
}

// ChunkSkipped records a skipped chunk; reason is "missing", "corrupt"
// or "oversized".
func (r *Recorder) ChunkSkipped(reason string) {
	if r == nil {
		return
	}
	r.chunksSkipped.WithLabelValues(reason).Inc()
}

// RestoreFinished records one restore attempt; outcome is "success",
// "failure" or "cancelled".
func (r *Recorder) RestoreFinished(outcome string, seconds float64) {
	if r == nil {
		return
	}
	r.restores.WithLabelValues(outcome).Inc()
	r.restoreDuration.Observe(seconds)
}

// PayloadStored records the stored size of one payload blob.
func (r *Recorder) PayloadStored(kind string, bytes int) {
	if r == nil {
		return
	}
	r.payloadBytes.WithLabelValues(kind).Observe(float64(bytes))
}
