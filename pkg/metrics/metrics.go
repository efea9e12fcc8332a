// Package metrics exports collaborator call and aggregation timings to
// Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "personalization"

// Recorder holds the service metrics on its own registry. It satisfies
// kontent.Observer.
type Recorder struct {
	registry  *prometheus.Registry
	calls     *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	aggregate prometheus.Histogram
	variants  prometheus.Histogram
	refreshes *prometheus.CounterVec
}

// NewRecorder creates a Recorder. Process and Go runtime collectors are
// registered alongside the service metrics.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kontent_calls_total",
			Help:      "Data-access calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kontent_call_duration_seconds",
			Help:      "Data-access call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		aggregate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Time to resolve the variants linked from a base item.",
			Buckets:   prometheus.DefBuckets,
		}),
		variants: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_variants",
			Help:      "Variants returned per aggregation.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panel_refreshes_total",
			Help:      "Panel refreshes by final state.",
		}, []string{"state"}),
	}
	r.registry.MustRegister(
		r.calls, r.latency, r.aggregate, r.variants, r.refreshes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveCall records one data-access call.
func (r *Recorder) ObserveCall(op string, elapsed time.Duration, err error) {
	r.calls.WithLabelValues(op, outcome(err)).Inc()
	r.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveAggregation records one aggregation and the number of variants it
// returned.
func (r *Recorder) ObserveAggregation(elapsed time.Duration, variants int) {
	r.aggregate.Observe(elapsed.Seconds())
	r.variants.Observe(float64(variants))
}

// ObserveRefresh counts a finished panel refresh. state is "success",
// "error" or "stale".
func (r *Recorder) ObserveRefresh(state string) {
	r.refreshes.WithLabelValues(state).Inc()
}

// Registry returns the registry the metrics are registered on.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
