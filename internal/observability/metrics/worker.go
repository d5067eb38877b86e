package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics tracks the document processing loop: throughput and
// latency per outcome, current in-flight tasks, and how long a
// document sat queued before a worker picked it up. The service name
// is fixed at construction, one WorkerMetrics per process.
type WorkerMetrics struct {
	registry *prometheus.Registry

	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  prometheus.Gauge
	queueLag  prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	labels := prometheus.Labels{"service": service}

	m := &WorkerMetrics{
		registry: prometheus.NewRegistry(),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "polyqa",
			Subsystem:   "worker",
			Name:        "document_process_total",
			Help:        "Total processed documents by status.",
			ConstLabels: labels,
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "polyqa",
			Subsystem:   "worker",
			Name:        "document_process_duration_seconds",
			Help:        "Document processing duration in seconds by status.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "polyqa",
			Subsystem:   "worker",
			Name:        "document_process_in_flight",
			Help:        "Number of in-flight document processing tasks.",
			ConstLabels: labels,
		}),
		queueLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "polyqa",
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between document upload and processing start.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(m.processed, m.duration, m.inFlight, m.queueLag)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.inFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(duration time.Duration, err error) {
	m.inFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.processed.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}
