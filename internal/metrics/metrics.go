// Package metrics exports collection activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mesh-intelligence/courtside/pkg/types"
)

// Namespace prefixes every metric name.
const Namespace = "courtside"

// Recorder implements types.MetricsRecorder on a private registry.
type Recorder struct {
	registry      *prometheus.Registry
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	mutations     *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	pushes        *prometheus.CounterVec
}

// NewRecorder registers the collection metrics, plus the Go runtime and
// process collectors, on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fetches_total",
			Help:      "Collection fetches by resource and outcome.",
		}, []string{"resource", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent waiting for collection fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "mutations_total",
			Help:      "Create, update and delete calls by resource, operation and outcome.",
		}, []string{"resource", "op", "outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_fallbacks_total",
			Help:      "Failed fetches answered from the local cache.",
		}, []string{"resource"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "push_messages_total",
			Help:      "Push deltas applied by resource and kind.",
		}, []string{"resource", "kind"}),
	}
	r.registry.MustRegister(
		r.fetches,
		r.fetchDuration,
		r.mutations,
		r.fallbacks,
		r.pushes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveFetch implements types.MetricsRecorder.
func (r *Recorder) ObserveFetch(resource, outcome string, d time.Duration) {
	r.fetches.WithLabelValues(resource, outcome).Inc()
	r.fetchDuration.WithLabelValues(resource).Observe(d.Seconds())
}

// ObserveMutation implements types.MetricsRecorder.
func (r *Recorder) ObserveMutation(resource, op, outcome string) {
	r.mutations.WithLabelValues(resource, op, outcome).Inc()
}

// ObserveCacheFallback implements types.MetricsRecorder.
func (r *Recorder) ObserveCacheFallback(resource string) {
	r.fallbacks.WithLabelValues(resource).Inc()
}

// ObservePush implements types.MetricsRecorder.
func (r *Recorder) ObservePush(resource, kind string) {
	r.pushes.WithLabelValues(resource, kind).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

var _ types.MetricsRecorder = (*Recorder)(nil)
