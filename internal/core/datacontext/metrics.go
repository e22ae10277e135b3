package datacontext

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "datacontext"

var (
	commitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commits_total",
			Help:      "Outermost commits by result.",
		},
		[]string{"result"},
	)

	rollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rollbacks_total",
			Help:      "Rollbacks by result.",
		},
		[]string{"result"},
	)

	actionsExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "actions_executed_total",
			Help:      "Scheduled actions persisted, by kind.",
		},
		[]string{"kind"},
	)

	commitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "commit_duration_seconds",
			Help:      "Time spent in the outermost commit.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	poolContexts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pool_contexts",
			Help:      "Pooled data contexts by state.",
		},
		[]string{"state"},
	)

	poolEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pool_evictions_total",
			Help:      "Idle data contexts evicted from the pool.",
		},
	)
)

func init() {
	prometheus.MustRegister(commitsTotal)
	prometheus.MustRegister(rollbacksTotal)
	prometheus.MustRegister(actionsExecutedTotal)
	prometheus.MustRegister(commitDuration)
	prometheus.MustRegister(poolContexts)
	prometheus.MustRegister(poolEvictionsTotal)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
