package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	EventsTotal         *prometheus.CounterVec
	CommandsTotal       *prometheus.CounterVec
	ActiveConversations prometheus.Gauge
	InboxEntries        prometheus.Gauge
	GatewayLatency      prometheus.Histogram
	SweeperDeletions    prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound chat events by kind.",
		}, []string{"kind"}),
		CommandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Handled commands by command and outcome.",
		}, []string{"command", "outcome"}),
		ActiveConversations: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversations",
			Help:      "Number of live conversation histories.",
		}),
		InboxEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inbox_entries",
			Help:      "Number of cached inbound images.",
		}),
		GatewayLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_latency_seconds",
			Help:      "Latency of remote generation calls in seconds.",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 60, 90, 120},
		}),
		SweeperDeletions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_deletions_total",
			Help:      "Artifact files removed by the retention sweeper.",
		}),
	}
}

func (m *Metrics) ObserveGatewayLatency(d time.Duration) {
	m.GatewayLatency.Observe(d.Seconds())
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
