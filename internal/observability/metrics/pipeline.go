package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/okulov/polyqa/internal/core/domain"
)

// PipelineMetrics implements the orchestrator's observer. It registers
// into an existing registry so the API server serves one /metrics
// endpoint.
type PipelineMetrics struct {
	service string

	queriesTotal    *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	queriesInFlight prometheus.Gauge
	stageDuration   *prometheus.HistogramVec
	stageDegraded   *prometheus.CounterVec
	retriesTotal    prometheus.Counter
}

func NewPipelineMetrics(service string, registry *prometheus.Registry) *PipelineMetrics {
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "polyqa",
			Subsystem: "pipeline",
			Name:      "queries_total",
			Help:      "Total answered queries by terminal state.",
		},
		[]string{"service", "state"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "polyqa",
			Subsystem: "pipeline",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query duration in seconds by terminal state.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service", "state"},
	)
	queriesInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "polyqa",
			Subsystem: "pipeline",
			Name:      "queries_in_flight",
			Help:      "Number of queries currently being answered.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "polyqa",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	stageDegraded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "polyqa",
			Subsystem: "pipeline",
			Name:      "stage_degraded_total",
			Help:      "Total stage executions that degraded instead of failing.",
		},
		[]string{"service", "stage"},
	)
	retriesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "polyqa",
			Subsystem: "pipeline",
			Name:      "retries_total",
			Help:      "Total validation-driven retry passes.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(queriesTotal, queryDuration, queriesInFlight, stageDuration, stageDegraded, retriesTotal)

	return &PipelineMetrics{
		service:         service,
		queriesTotal:    queriesTotal,
		queryDuration:   queryDuration,
		queriesInFlight: queriesInFlight,
		stageDuration:   stageDuration,
		stageDegraded:   stageDegraded,
		retriesTotal:    retriesTotal,
	}
}

func (m *PipelineMetrics) QueryStarted() {
	m.queriesInFlight.Inc()
}

func (m *PipelineMetrics) QueryFinished(state domain.State, elapsed time.Duration, retries int) {
	m.queriesInFlight.Dec()
	m.queriesTotal.WithLabelValues(m.service, string(state)).Inc()
	m.queryDuration.WithLabelValues(m.service, string(state)).Observe(elapsed.Seconds())
	if retries > 0 {
		m.retriesTotal.Add(float64(retries))
	}
}

func (m *PipelineMetrics) StageObserved(stage string, d time.Duration, degraded bool) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(d.Seconds())
	if degraded {
		m.stageDegraded.WithLabelValues(m.service, stage).Inc()
	}
}
