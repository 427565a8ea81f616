package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the fetcher. Instances
// register against an injected registerer so tests can create
// independent sets.
type Metrics struct {
	Registry *prometheus.Registry

	FetchesTotal    *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	InFlight        prometheus.Gauge
	QueueDepth      prometheus.Gauge
	RequestDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		FetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edgar_fetches_total",
			Help: "Terminal fetch outcomes by result.",
		}, []string{"result"}), // 'success', 'terminal_failure', 'skipped'
		RetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "edgar_retries_total",
			Help: "Retryable failures that were scheduled for another attempt.",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "edgar_inflight_requests",
			Help: "Requests currently being attempted.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "edgar_queue_depth",
			Help: "CIKs waiting in the task queue.",
		}),
		RequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "edgar_request_duration_seconds",
			Help:    "Duration of individual submissions requests.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncFetch(result string) {
	m.FetchesTotal.WithLabelValues(result).Inc()
}
