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
	ActiveConversations prometheus.Gauge
	ConversationEvents  *prometheus.CounterVec
	TurnsTotal          *prometheus.CounterVec
	TurnLatency         prometheus.Histogram
	RetrievedRecords    prometheus.Histogram
	ContextChars        *prometheus.HistogramVec
	DisclosuresTotal    prometheus.Counter
	PromptViolations    prometheus.Counter
	Redactions          *prometheus.CounterVec
	BrainErrors         *prometheus.CounterVec
	StoreErrors         *prometheus.CounterVec
	WSMessages          *prometheus.CounterVec
	WSWriteErrors       *prometheus.CounterVec

	// Stages keeps a rolling window of per-stage latencies for the
	// debug snapshot endpoint.
	Stages *StageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveConversations: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversations",
			Help:      "Number of active conversations.",
		}),
		ConversationEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_events_total",
			Help:      "Conversation lifecycle events by type.",
		}, []string{"event"}),
		TurnsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by outcome.",
		}, []string{"outcome"}),
		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "End-to-end turn latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}),
		RetrievedRecords: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_records",
			Help:      "Memory records returned by vector search per turn.",
			Buckets:   []float64{0, 1, 2, 4, 8, 12, 16, 24},
		}),
		ContextChars: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_chars",
			Help:      "Rendered context size in characters by tier.",
			Buckets:   []float64{0, 100, 250, 500, 1000, 2000, 4000, 8000},
		}, []string{"tier"}),
		DisclosuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disclosures_total",
			Help:      "Turns where the no-memory disclosure was injected.",
		}),
		PromptViolations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_violations_total",
			Help:      "Assembled prompts rejected by structural validation.",
		}),
		Redactions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pii_redactions_total",
			Help:      "PII redactions applied before persistence, by class.",
		}, []string{"class"}),
		BrainErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "brain_errors_total",
			Help:      "Model backend errors by code.",
		}, []string{"code"}),
		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "External store errors by store and operation.",
		}, []string{"store", "op"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket write errors by cause.",
		}, []string{"cause"}),
		Stages: NewStageWindow(256),
	}
}

func (m *Metrics) ObserveTurnLatency(d time.Duration) {
	m.TurnLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
