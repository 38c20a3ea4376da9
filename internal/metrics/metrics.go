package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for the records counter.
const (
	OutcomeKept    = "kept"
	OutcomeDropped = "dropped"
	OutcomeError   = "error"
)

// Recorder holds the run metrics of one dedup job. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	registry     *prometheus.Registry
	records      *prometheus.CounterVec
	indexEntries prometheus.Gauge
	candidates   prometheus.Histogram
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neardup",
			Name:      "records_total",
			Help:      "Records processed, by outcome.",
		}, []string{"outcome"}),
		indexEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neardup",
			Name:      "index_entries",
			Help:      "Representatives currently stored in the LSH index.",
		}),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "neardup",
			Name:      "candidates_per_query",
			Help:      "LSH candidates returned per query.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 64, 256},
		}),
	}
	r.registry.MustRegister(r.records, r.indexEntries, r.candidates)
	for _, o := range []string{OutcomeKept, OutcomeDropped, OutcomeError} {
		r.records.WithLabelValues(o)
	}
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveDecision counts one classified record.
func (r *Recorder) ObserveDecision(outcome string, candidates int) {
	if r == nil {
		return
	}
	r.records.WithLabelValues(outcome).Inc()
	r.candidates.Observe(float64(candidates))
}

// ObserveError counts one record that failed before classification.
func (r *Recorder) ObserveError() {
	if r == nil {
		return
	}
	r.records.WithLabelValues(OutcomeError).Inc()
}

// SetIndexEntries records the index size.
func (r *Recorder) SetIndexEntries(n int) {
	if r == nil {
		return
	}
	r.indexEntries.Set(float64(n))
}

// WriteTextfile writes the text exposition format to path, for the node
// exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
