package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records Prometheus metrics for pipeline runs, namespaced
// "scribe":
//
//   - inflight_work (gauge, per step): work items queued or executing
//   - queue_depth (gauge, per step): backlog in the submission channel
//   - step_latency_ms (histogram, per step and status): claim-to-commit
//     duration of one work item
//   - commits_total / aborts_total / claim_conflicts_total (counters,
//     per step)
//
// A nil *Metrics is valid everywhere and records nothing, so metrics stay
// strictly opt-in:
//
//	registry := prometheus.NewRegistry()
//	metrics := pipeline.NewMetrics(registry)
//	d := pipeline.NewDispatcher(st, emitter, pipeline.Options{Metrics: metrics})
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	inflight       *prometheus.GaugeVec
	queueDepth     *prometheus.GaugeVec
	stepLatency    *prometheus.HistogramVec
	commits        *prometheus.CounterVec
	aborts         *prometheus.CounterVec
	claimConflicts *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline metrics with the given
// registry. Pass prometheus.DefaultRegisterer for the global registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		inflight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scribe",
			Name:      "inflight_work",
			Help:      "Work items currently queued or executing, per step.",
		}, []string{"step"}),
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scribe",
			Name:      "queue_depth",
			Help:      "Backlog in the step's submission channel.",
		}, []string{"step"}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scribe",
			Name:      "step_latency_ms",
			Help:      "Claim-to-commit duration of one work item in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000, 300000},
		}, []string{"step", "status"}),
		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scribe",
			Name:      "commits_total",
			Help:      "Records committed, per step.",
		}, []string{"step"}),
		aborts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scribe",
			Name:      "aborts_total",
			Help:      "Output slots aborted after failure or empty output, per step.",
		}, []string{"step"}),
		claimConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scribe",
			Name:      "claim_conflicts_total",
			Help:      "Claims lost to another worker or an earlier run, per step.",
		}, []string{"step"}),
	}
}

func (m *Metrics) setInflight(step string, n int) {
	if m == nil {
		return
	}
	m.inflight.WithLabelValues(step).Set(float64(n))
}

func (m *Metrics) setQueueDepth(step string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(step).Set(float64(n))
}

func (m *Metrics) observeLatency(step, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepLatency.WithLabelValues(step, status).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) incCommit(step string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(step).Inc()
}

func (m *Metrics) incAbort(step string) {
	if m == nil {
		return
	}
	m.aborts.WithLabelValues(step).Inc()
}

func (m *Metrics) incClaimConflict(step string) {
	if m == nil {
		return
	}
	m.claimConflicts.WithLabelValues(step).Inc()
}
