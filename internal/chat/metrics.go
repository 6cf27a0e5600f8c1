package chat

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the server's collectors. Every Server gets its own set so
// that several servers can share one process (tests).
type Metrics struct {
	ConnectedClients        prometheus.Gauge
	MessagesTotal           *prometheus.CounterVec
	EventProcessingDuration *prometheus.HistogramVec
	SendResults             *prometheus.CounterVec
	AcceptErrors            prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_connected_clients",
			Help: "Number of currently connected clients",
		}),
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total messages processed by type",
		}, []string{"type"}),
		EventProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_event_processing_seconds",
			Help:    "Time to process each event type",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		SendResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_sends_total",
			Help: "Per-recipient send attempts by outcome",
		}, []string{"result"}),
		AcceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_accept_errors_total",
			Help: "Accept calls that failed and were dropped",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnectedClients,
			m.MessagesTotal,
			m.EventProcessingDuration,
			m.SendResults,
			m.AcceptErrors,
		)
	}
	return m
}
