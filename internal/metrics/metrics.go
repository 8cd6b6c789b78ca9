// Package metrics is the Prometheus instrumentation for the orchestrator
// (C6), which records artifact-cache hits, misses and evictions, task
// queue depth and compile durations on behalf of the components it owns.
//
// Grounded on spec.md §9's "observability layers" ambient-stack note and
// github.com/prometheus/client_golang as used by platinummonkey-spoke
// for the same kind of per-component counters/histograms.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder is constructed once per orchestrator and passed down to every
// component that needs to record an event — never a package-level
// global, so multiple orchestrators in one process (as in tests) don't
// collide on Prometheus's default registry.
type Recorder struct {
	registry *prometheus.Registry

	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	LRUEvictions    prometheus.Counter
	TaskQueueDepth  prometheus.Gauge
	CompileDuration *prometheus.HistogramVec
}

// New builds a Recorder backed by a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cjlscore",
			Name:      "cache_hits_total",
			Help:      "Number of cache lookups that found a usable entry, by cache name.",
		}, []string{"cache"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cjlscore",
			Name:      "cache_misses_total",
			Help:      "Number of cache lookups that found no usable entry, by cache name.",
		}, []string{"cache"}),
		LRUEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cjlscore",
			Name:      "artifact_lru_evictions_total",
			Help:      "Number of artifact cache entries evicted under capacity pressure or explicitly dropped.",
		}),
		TaskQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cjlscore",
			Name:      "task_queue_depth",
			Help:      "Number of tasks registered in the task pool but not yet complete.",
		}),
		CompileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cjlscore",
			Name:      "compile_duration_seconds",
			Help:      "Wall-clock duration of a package compile, by kind (full, incremental, completion).",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	reg.MustRegister(r.CacheHits, r.CacheMisses, r.LRUEvictions, r.TaskQueueDepth, r.CompileDuration)
	return r
}

// Gatherer exposes the underlying registry for an HTTP /metrics handler.
func (r *Recorder) Gatherer() prometheus.Gatherer { return r.registry }

func (r *Recorder) Hit(cache string)  { r.CacheHits.WithLabelValues(cache).Inc() }
func (r *Recorder) Miss(cache string) { r.CacheMisses.WithLabelValues(cache).Inc() }
func (r *Recorder) Evicted()          { r.LRUEvictions.Inc() }
func (r *Recorder) SetQueueDepth(n int) {
	r.TaskQueueDepth.Set(float64(n))
}

// ObserveCompile records one compile's duration in seconds, tagged with
// its kind ("full", "incremental", "completion").
func (r *Recorder) ObserveCompile(kind string, seconds float64) {
	r.CompileDuration.WithLabelValues(kind).Observe(seconds)
}
